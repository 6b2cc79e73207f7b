package entity

import (
	"time"

	"github.com/google/uuid"
)

// Entity is a tracked subject such as a vendor, vehicle or property.
type Entity struct {
	ID             uuid.UUID      `json:"id"`
	AccountID      uuid.UUID      `json:"account_id"`
	TypeCode       string         `json:"entity_type"`
	Name           string         `json:"name"`
	Email          *string        `json:"email,omitempty"`
	Phone          *string        `json:"phone,omitempty"`
	Address        *string        `json:"address,omitempty"`
	CustomFields   map[string]any `json:"custom_fields,omitempty"`
	ExternalID     *string        `json:"external_id,omitempty"`
	ExternalSource *string        `json:"external_source,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// EntityPatch carries the mutable entity fields; nil leaves a field unchanged.
type EntityPatch struct {
	Name         *string        `json:"name,omitempty"`
	Email        *string        `json:"email,omitempty"`
	Phone        *string        `json:"phone,omitempty"`
	Address      *string        `json:"address,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}
