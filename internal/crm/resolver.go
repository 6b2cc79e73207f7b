package crm

import (
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
)

// ErrNotConfigured means the account has no enabled CRM.
var ErrNotConfigured = errors.New("crm not configured")

// ConnectorFactory builds the connector for an account's stored settings.
type ConnectorFactory interface {
	// Resolve uses the account's selected provider.
	Resolve(acc *entity.Account) (Connector, error)
	// ForProvider builds a connector for provider even when it is not the selected one,
	// so webhooks can be verified against the stored secret.
	ForProvider(acc *entity.Account, provider string) (Connector, error)
}

// Resolver decrypts stored credentials and builds HubSpot or Zapier connectors.
type Resolver struct {
	box            *Box
	hubspotBaseURL string
	timeout        time.Duration
	logger         *slog.Logger
}

func NewResolver(box *Box, cfg common.CRMConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{box: box, hubspotBaseURL: cfg.HubSpotBaseURL, timeout: cfg.Timeout, logger: logger}
}

func (r *Resolver) Resolve(acc *entity.Account) (Connector, error) {
	if !acc.CRM.Enabled || acc.CRM.Provider == "" {
		return nil, ErrNotConfigured
	}
	return r.ForProvider(acc, acc.CRM.Provider)
}

func (r *Resolver) ForProvider(acc *entity.Account, provider string) (Connector, error) {
	settings := acc.CRM
	secret, err := r.box.Decrypt(settings.WebhookSecret)
	if err != nil {
		r.logger.Error("crm.resolve.secret_error", "account_id", acc.ID, "error", err)
		return nil, err
	}
	switch provider {
	case ProviderHubSpot:
		token, err := r.box.Decrypt(settings.APIKey)
		if err != nil {
			r.logger.Error("crm.resolve.secret_error", "account_id", acc.ID, "error", err)
			return nil, err
		}
		return NewHubSpot(HubSpotConfig{
			BaseURL:       r.hubspotBaseURL,
			Token:         token,
			ObjectType:    settings.ObjectType,
			WebhookSecret: secret,
			Timeout:       r.timeout,
		}, r.logger), nil
	case ProviderZapier:
		return NewZapier(ZapierConfig{WebhookURLs: settings.WebhookURLs, WebhookSecret: secret, Timeout: r.timeout}, r.logger), nil
	}
	return nil, common.InvalidInputf("unknown crm provider %q", provider)
}
