package email

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTP sends plain-text mail through an authenticated relay (STARTTLS when offered).
type SMTP struct {
	cfg    SMTPConfig
	from   From
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *slog.Logger
}

func NewSMTP(cfg SMTPConfig, from From, logger *slog.Logger) *SMTP {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTP{cfg: cfg, from: from, send: smtp.SendMail, logger: logger}
}

func (s *SMTP) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	to.Name = msg.ToName

	domain := s.from.Address
	if i := strings.LastIndexByte(domain, '@'); i >= 0 {
		domain = domain[i+1:]
	}
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", (&mail.Address{Name: s.from.Name, Address: s.from.Address}).String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", id)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.TextBody, "\n", "\r\n"))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	start := time.Now()
	if err := s.send(addr, auth, s.from.Address, []string{to.Address}, []byte(b.String())); err != nil {
		s.logger.Error("email.smtp.error", "to", to.Address, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Info("email.smtp.ok", "to", to.Address, "message_id", id, "elapsed_ms", time.Since(start).Milliseconds())
	return id, nil
}
