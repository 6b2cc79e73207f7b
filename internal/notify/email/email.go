// Package email delivers rendered notifications.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
)

// Message is one outbound email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	TextBody string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// From is the envelope sender shared by every provider.
type From struct {
	Address string
	Name    string
}

func (f From) String() string {
	if f.Name == "" {
		return f.Address
	}
	return fmt.Sprintf("%s <%s>", f.Name, f.Address)
}

// New selects the provider named in cfg.
func New(cfg common.EmailConfig, logger *slog.Logger) (Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	from := From{Address: cfg.FromAddress, Name: cfg.FromName}
	switch cfg.Provider {
	case "", "console":
		return NewConsole(from, logger), nil
	case "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}, from, logger), nil
	case "sendgrid":
		return NewSendGrid(cfg.SendGridURL, cfg.SendGridAPIKey, from, logger), nil
	}
	return nil, common.InvalidInputf("unknown email provider %q", cfg.Provider)
}
