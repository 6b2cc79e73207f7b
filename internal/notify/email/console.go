package email

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Console logs messages instead of sending them. Used in development.
type Console struct {
	from   From
	logger *slog.Logger
}

func NewConsole(from From, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{from: from, logger: logger}
}

func (c *Console) Send(_ context.Context, msg Message) (string, error) {
	id := "console-" + uuid.NewString()
	body := msg.TextBody
	if len(body) > 500 {
		body = body[:500] + "... [truncated]"
	}
	c.logger.Info("email.console.send",
		"message_id", id,
		"from", c.from.String(),
		"to", msg.To,
		"subject", msg.Subject,
		"body", body,
	)
	return id, nil
}
