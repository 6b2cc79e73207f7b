package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/joseph-ayodele/compliance-tracker/internal/llm"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Temperature    float32           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
	Messages       []chatMessage     `json:"messages"`
}

// Complete implements llm.Completer with chat/completions in json_object mode.
// Transport failures come back as *llm.TransportError; an unusable body wraps llm.ErrMalformed.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	start := time.Now()
	body := chatRequest{
		Model:          c.cfg.Model,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/chat/completions")
	if err != nil {
		c.logger.Error("llm.complete.send_error",
			"model", c.cfg.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", &llm.TransportError{Retriable: !errors.Is(err, context.Canceled), Err: err}
	}
	raw := resp.Body()
	if code := resp.StatusCode(); code/100 != 2 {
		reason := gjson.GetBytes(raw, "error.message").String()
		if reason == "" {
			reason = resp.Status()
		}
		c.logger.Error("llm.complete.rejected",
			"model", c.cfg.Model, "status", code, "reason", reason,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", &llm.TransportError{StatusCode: code, Retriable: llm.StatusRetriable(code), Err: errors.New(reason)}
	}

	if !gjson.ValidBytes(raw) {
		c.logger.Error("llm.complete.decode_error", "raw_bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: openai response is not json", llm.ErrMalformed)
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		c.logger.Error("llm.complete.no_choices", "raw_bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: no choices in openai response", llm.ErrMalformed)
	}
	out := strings.TrimSpace(content.String())
	c.logger.Info("llm.complete.ok",
		"model", c.cfg.Model,
		"content_bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
