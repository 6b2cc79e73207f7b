package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

// SyncLog is one CRM sync attempt. Rows are never updated.
type SyncLog struct {
	ID           uuid.UUID               `json:"id"`
	AccountID    uuid.UUID               `json:"account_id"`
	EntityID     *uuid.UUID              `json:"entity_id,omitempty"`
	Provider     string                  `json:"provider"`
	Operation    constants.SyncOperation `json:"operation"`
	Direction    constants.SyncDirection `json:"direction"`
	Status       constants.SyncStatus    `json:"status"`
	ExternalID   *string                 `json:"external_id,omitempty"`
	DurationMS   int64                   `json:"duration_ms"`
	ErrorMessage *string                 `json:"error_message,omitempty"`
	RequestData  map[string]any          `json:"request_data,omitempty"`
	ResponseData map[string]any          `json:"response_data,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}
