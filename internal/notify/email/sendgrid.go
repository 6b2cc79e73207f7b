package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// SendGrid posts to the v3 mail/send API.
type SendGrid struct {
	client *resty.Client
	from   From
	logger *slog.Logger
}

func NewSendGrid(baseURL, apiKey string, from From, logger *slog.Logger) *SendGrid {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &SendGrid{client: client, from: from, logger: logger}
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

func (s *SendGrid) Send(ctx context.Context, msg Message) (string, error) {
	start := time.Now()
	body := sgMail{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: msg.To, Name: msg.ToName}}}},
		From:             sgAddress{Email: s.from.Address, Name: s.from.Name},
		Subject:          msg.Subject,
		Content:          []sgContent{{Type: "text/plain", Value: msg.TextBody}},
	}
	resp, err := s.client.R().SetContext(ctx).SetBody(body).Post("/v3/mail/send")
	if err != nil {
		s.logger.Error("email.sendgrid.error", "to", msg.To, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode() >= 300 {
		reason := gjson.GetBytes(resp.Body(), "errors.0.message").String()
		if reason == "" {
			reason = resp.Status()
		}
		s.logger.Error("email.sendgrid.rejected", "to", msg.To, "status", resp.StatusCode(), "reason", reason)
		return "", fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode(), reason)
	}
	id := resp.Header().Get("X-Message-Id")
	s.logger.Info("email.sendgrid.ok", "to", msg.To, "message_id", id, "elapsed_ms", time.Since(start).Milliseconds())
	return id, nil
}
