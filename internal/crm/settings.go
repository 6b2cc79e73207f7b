package crm

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
)

// SettingsView is the client-facing CRM configuration. Secrets are redacted.
type SettingsView struct {
	Provider       string            `json:"provider"`
	Enabled        bool              `json:"enabled"`
	ObjectType     string            `json:"object_type,omitempty"`
	APIKey         RedactedSecret    `json:"api_key"`
	WebhookSecret  RedactedSecret    `json:"webhook_secret"`
	WebhookURLs    map[string]string `json:"webhook_urls,omitempty"`
	FieldMapping   map[string]string `json:"field_mapping,omitempty"`
	LastSyncAt     *time.Time        `json:"last_sync_at,omitempty"`
	LastSyncStatus string            `json:"last_sync_status,omitempty"`
}

// SettingsUpdate changes CRM settings. Nil fields keep the stored value, so omitted
// secrets are never wiped. An empty secret clears it.
type SettingsUpdate struct {
	Provider      *string           `json:"provider"`
	Enabled       *bool             `json:"enabled"`
	ObjectType    *string           `json:"object_type"`
	APIKey        *string           `json:"api_key"`
	WebhookSecret *string           `json:"webhook_secret"`
	WebhookURLs   map[string]string `json:"webhook_urls"`
	FieldMapping  map[string]string `json:"field_mapping"`
}

func viewOf(c entity.CRMSettings) SettingsView {
	return SettingsView{
		Provider:       c.Provider,
		Enabled:        c.Enabled,
		ObjectType:     c.ObjectType,
		APIKey:         Redact(c.APIKey),
		WebhookSecret:  Redact(c.WebhookSecret),
		WebhookURLs:    c.WebhookURLs,
		FieldMapping:   c.FieldMapping,
		LastSyncAt:     c.LastSyncAt,
		LastSyncStatus: c.LastSyncStatus,
	}
}

func (s *Service) Settings(ctx context.Context, accountID uuid.UUID) (SettingsView, error) {
	acc, err := s.store.Accounts.Get(ctx, accountID)
	if err != nil {
		return SettingsView{}, err
	}
	return viewOf(acc.CRM), nil
}

func (s *Service) UpdateSettings(ctx context.Context, accountID uuid.UUID, u SettingsUpdate) (SettingsView, error) {
	v := common.NewValidator()
	if u.Provider != nil {
		v.Field("provider", *u.Provider, common.OneOf(ProviderHubSpot, ProviderZapier))
	}
	if u.ObjectType != nil {
		v.Field("object_type", *u.ObjectType, common.OneOf(hubspotCompanies, hubspotContacts))
	}
	for event := range u.WebhookURLs {
		v.Field("webhook_urls", event, common.OneOf(zapierEventOrder...))
	}
	if err := v.Err(); err != nil {
		return SettingsView{}, err
	}

	var out SettingsView
	err := s.store.DB.WithTx(ctx, func(ctx context.Context) error {
		acc, err := s.store.Accounts.Get(ctx, accountID)
		if err != nil {
			return err
		}
		c := acc.CRM
		if u.Provider != nil {
			c.Provider = *u.Provider
		}
		if u.Enabled != nil {
			c.Enabled = *u.Enabled
		}
		if u.ObjectType != nil {
			c.ObjectType = *u.ObjectType
		}
		if u.WebhookURLs != nil {
			c.WebhookURLs = u.WebhookURLs
		}
		if u.FieldMapping != nil {
			c.FieldMapping = u.FieldMapping
		}
		if u.APIKey != nil {
			if c.APIKey, err = s.box.Encrypt(*u.APIKey); err != nil {
				return err
			}
		}
		if u.WebhookSecret != nil {
			if c.WebhookSecret, err = s.box.Encrypt(*u.WebhookSecret); err != nil {
				return err
			}
		}
		if c.Enabled && c.Provider == "" {
			return common.InvalidInputf("a provider is required to enable crm sync")
		}
		if err := s.store.Accounts.UpdateCRMSettings(ctx, acc.ID, c); err != nil {
			return err
		}
		out = viewOf(c)
		return nil
	})
	if err != nil {
		return SettingsView{}, err
	}
	s.logger.Info("crm.settings.updated", "account_id", accountID, "provider", out.Provider, "enabled", out.Enabled)
	return out, nil
}
