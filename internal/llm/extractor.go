package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

type Result struct {
	Fields            map[string]any
	OverallConfidence float64
	FieldConfidences  map[string]float64
	Flags             map[string]string
	Attempts          int
	Raw               string
}

type Extractor struct {
	completer  Completer
	retryDelay time.Duration
	logger     *slog.Logger
}

type Option func(*Extractor)

// WithRetryDelay sets the wait before the single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.retryDelay = d
		}
	}
}

func NewExtractor(c Completer, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{completer: c, retryDelay: time.Second, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the model for the schema fields of rawText, cleans the values and scores them.
// Transport failures and malformed responses share one retry; 4xx responses are not retried.
func (e *Extractor) Extract(ctx context.Context, rawText string, schema niche.ExtractionSchema, prompt string) (Result, error) {
	rid := uuid.NewString()
	start := time.Now()
	log := e.logger.With("req_id", rid, "fields", len(schema.Fields), "text_len", len(rawText))
	log.Info("llm.extract.start")

	req := Request{System: SystemPrompt(), User: BuildUserPrompt(prompt, schema, rawText)}

	var (
		attempts int
		raw      string
		parsed   map[string]any
	)
	backoff := retry.WithMaxRetries(1, retry.NewConstant(e.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		content, err := e.completer.Complete(ctx, req)
		if err != nil {
			log.Warn("llm.extract.attempt_error", "attempt", attempts, "error", err)
			if retriable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		raw = content
		obj, err := ParseObject(content)
		if err != nil {
			log.Warn("llm.extract.malformed", "attempt", attempts, "error", err, "raw_bytes", len(content))
			return retry.RetryableError(err)
		}
		parsed = obj
		return nil
	})
	if err != nil {
		log.Error("llm.extract.error", "attempts", attempts, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Result{Attempts: attempts, Raw: raw}, &ExtractionError{Attempts: attempts, Raw: raw, Err: err}
	}

	fields := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		fields[f.Name] = CleanValue(f.Type, parsed[f.Name])
	}
	modelConf, _ := parsed["_confidence"].(map[string]any)
	conf, flags := Score(schema, fields, modelConf)
	overall := Overall(schema, conf)

	log.Info("llm.extract.ok",
		"attempts", attempts,
		"overall_confidence", overall,
		"flagged", len(flags),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{
		Fields:            fields,
		OverallConfidence: overall,
		FieldConfidences:  conf,
		Flags:             flags,
		Attempts:          attempts,
		Raw:               raw,
	}, nil
}
