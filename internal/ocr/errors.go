package ocr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnsupported Kind = "unsupported"
	KindCorrupt     Kind = "corrupt"
	KindTimeout     Kind = "timeout"
	KindBackend     Kind = "backend"
)

// Error is the only error type ExtractText returns.
type Error struct {
	Kind      Kind
	Retriable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "ocr " + string(e.Kind)
	}
	return fmt.Sprintf("ocr %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func unsupported(format string, args ...any) *Error {
	return &Error{Kind: KindUnsupported, Err: fmt.Errorf(format, args...)}
}

func corrupt(err error) *Error {
	return &Error{Kind: KindCorrupt, Err: err}
}

func timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Retriable: true, Err: err}
}

// BackendError wraps a recognizer failure. Backends decide retriability.
func BackendError(err error, retriable bool) *Error {
	return &Error{Kind: KindBackend, Retriable: retriable, Err: err}
}

// IsRetriable reports whether err is an ocr.Error marked retriable.
func IsRetriable(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Retriable
}

// classify converts a raw failure into an *Error, treating an expired ctx as a timeout.
func classify(ctx context.Context, err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeout(err)
	}
	return BackendError(err, false)
}
