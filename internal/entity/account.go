package entity

import (
	"time"

	"github.com/google/uuid"
)

// Account owns entities, users and CRM settings.
type Account struct {
	ID                    uuid.UUID         `json:"id"`
	Name                  string            `json:"name"`
	NicheID               string            `json:"niche_id"`
	Active                bool              `json:"active"`
	CRM                   CRMSettings       `json:"crm_settings"`
	NotificationOverrides map[string]string `json:"notification_overrides,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// CRMSettings is stored as JSON on the account. APIKey and WebhookSecret hold ciphertext.
type CRMSettings struct {
	Provider       string            `json:"provider,omitempty"`
	Enabled        bool              `json:"enabled"`
	ObjectType     string            `json:"object_type,omitempty"`
	APIKey         string            `json:"api_key,omitempty"`
	WebhookSecret  string            `json:"webhook_secret,omitempty"`
	WebhookURLs    map[string]string `json:"webhook_urls,omitempty"`
	FieldMapping   map[string]string `json:"field_mapping,omitempty"`
	LastSyncAt     *time.Time        `json:"last_sync_at,omitempty"`
	LastSyncStatus string            `json:"last_sync_status,omitempty"`
}

// User is a member of an account that can receive notifications.
type User struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)
