package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

// Notification is an alert for one requirement, unique per (requirement, type, notice date).
type Notification struct {
	ID               uuid.UUID                    `json:"id"`
	AccountID        uuid.UUID                    `json:"account_id"`
	RequirementID    uuid.UUID                    `json:"requirement_id"`
	RecipientID      *uuid.UUID                   `json:"recipient_id,omitempty"`
	Type             constants.NotificationType   `json:"notification_type"`
	NoticeDate       time.Time                    `json:"notice_date"`
	ThresholdDays    *int                         `json:"threshold_days,omitempty"`
	Channel          string                       `json:"channel"`
	TemplateCode     *string                      `json:"template_code,omitempty"`
	Subject          *string                      `json:"subject,omitempty"`
	Body             *string                      `json:"body,omitempty"`
	Context          map[string]any               `json:"context,omitempty"`
	Status           constants.NotificationStatus `json:"status"`
	DeliveryAttempts int                          `json:"delivery_attempts"`
	LastError        *string                      `json:"last_error,omitempty"`
	ExternalID       *string                      `json:"external_id,omitempty"`
	ScheduledAt      time.Time                    `json:"scheduled_at"`
	SentAt           *time.Time                   `json:"sent_at,omitempty"`
	ReadAt           *time.Time                   `json:"read_at,omitempty"`
	CreatedAt        time.Time                    `json:"created_at"`
}
