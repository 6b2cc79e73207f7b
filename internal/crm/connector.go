// Package crm pushes entity and compliance data to external CRMs and accepts their webhooks.
package crm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
)

const (
	ProviderHubSpot = "hubspot"
	ProviderZapier  = "zapier"
)

// EntityPayload is an entity as the CRM sees it. Properties are already field-mapped.
type EntityPayload struct {
	EntityID   uuid.UUID
	ExternalID string // empty creates a record
	Properties map[string]any
}

// PushResult reports a successful entity push.
type PushResult struct {
	Operation  constants.SyncOperation
	ExternalID string // empty when the provider assigns ids later
	Response   map[string]any
}

// Aggregate compliance states pushed to CRMs.
type AggregateStatus string

const (
	StatusCompliant      AggregateStatus = "compliant"
	StatusExpiringSoon   AggregateStatus = "expiring_soon"
	StatusNonCompliant   AggregateStatus = "non_compliant"
	StatusPending        AggregateStatus = "pending"
	StatusNoRequirements AggregateStatus = "no_requirements"
)

// ComplianceStatus is the per-entity summary written to the CRM record.
type ComplianceStatus struct {
	Status      AggregateStatus
	Expiry      *time.Time // earliest due date across requirements
	LastUpdated time.Time
}

// Properties renders the status as compliance_* fields.
func (c ComplianceStatus) Properties() map[string]any {
	props := map[string]any{
		"compliance_status":       string(c.Status),
		"compliance_last_updated": c.LastUpdated.UTC().Format(time.RFC3339),
	}
	if c.Expiry != nil {
		props["compliance_expiry"] = c.Expiry.Format("2006-01-02")
	}
	return props
}

// Inbound webhook event types.
const (
	EventContactCreated = "contact.created"
	EventContactUpdated = "contact.updated"
)

// WebhookEvent is one verified inbound change.
type WebhookEvent struct {
	Type       string
	ExternalID string
	Data       map[string]any
	Raw        map[string]any
}

// Connector is the capability set every CRM backend provides.
type Connector interface {
	Provider() string
	TestConnection(ctx context.Context) error
	PushEntity(ctx context.Context, p EntityPayload) (PushResult, error)
	PushComplianceStatus(ctx context.Context, externalID string, status ComplianceStatus) error
	// ReceiveWebhook verifies the signature before parsing body.
	ReceiveWebhook(ctx context.Context, body []byte, header http.Header) ([]WebhookEvent, error)
}

// SyncError is a failed call to a CRM.
type SyncError struct {
	Provider   string
	Operation  constants.SyncOperation
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (%d): %v", e.Provider, e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Operation, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// WebhookSignatureError rejects an inbound webhook before its body is read.
type WebhookSignatureError struct {
	Provider  string
	AccountID uuid.UUID
	Reason    string
}

func (e *WebhookSignatureError) Error() string {
	return fmt.Sprintf("%s webhook for account %s: %s", e.Provider, e.AccountID, e.Reason)
}

func (e *WebhookSignatureError) Unwrap() error { return common.ErrUnauthorized }
