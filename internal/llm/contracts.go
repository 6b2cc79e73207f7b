// Package llm turns OCR text into typed field values with per-field confidence.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Request is one chat completion: a system and a user message answered in JSON mode.
type Request struct {
	System string
	User   string
}

// Completer returns the assistant content of a single completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrMalformed marks a response that is not a JSON object.
var ErrMalformed = errors.New("malformed model response")

// TransportError is a failed call to the model provider.
type TransportError struct {
	StatusCode int // 0 when no response was received
	Retriable  bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm transport: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusRetriable reports whether an HTTP status is worth one more attempt.
func StatusRetriable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// ExtractionError is returned once the retry budget is spent.
type ExtractionError struct {
	Attempts int
	Raw      string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func retriable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retriable
	}
	return errors.Is(err, ErrMalformed)
}
