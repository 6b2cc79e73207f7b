package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner executes the local tools (pdftoppm, tesseract, HEIC converters). Tests stub it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

const stderrTail = 2 << 10

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	// Children that ignore the kill signal must not hold the pipes open forever.
	cmd.WaitDelay = 2 * time.Second
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	tool := filepath.Base(name)
	if err != nil {
		r.logger.Error("ocr.exec.error",
			"tool", tool,
			"argc", len(args),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", tail(errb.String(), stderrTail),
		)
		return out.Bytes(), errb.Bytes(), err
	}
	r.logger.Debug("ocr.exec.ok",
		"tool", tool,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"stdout_bytes", out.Len(),
	)
	return out.Bytes(), errb.Bytes(), nil
}

// toolFailure classifies a failed tool run. A missing binary is never retriable; an
// expired ctx is a timeout; anything else goes through fallback.
func toolFailure(ctx context.Context, tool string, err error, stderr []byte, fallback func(error) *Error) *Error {
	if errors.Is(err, exec.ErrNotFound) {
		return BackendError(fmt.Errorf("%s not found on PATH: %w", tool, err), false)
	}
	if ctx.Err() != nil {
		return timeout(fmt.Errorf("%s: %w", tool, ctx.Err()))
	}
	if msg := strings.TrimSpace(tail(string(stderr), 512)); msg != "" {
		return fallback(fmt.Errorf("%s: %w: %s", tool, err, msg))
	}
	return fallback(fmt.Errorf("%s: %w", tool, err))
}

// tail keeps the last max bytes, where tools print the actual error.
func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
