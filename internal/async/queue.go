// Package async pushes entity changes to CRMs off the request path.
package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job asks for one entity to be pushed to its account's CRM.
type Job struct {
	EntityID  uuid.UUID
	AccountID uuid.UUID
	// Trigger names the change that queued the push, e.g. "entity.created".
	Trigger     string
	SubmittedAt time.Time
}

// Queue accepts push jobs. Enqueue must not block past ctx; Shutdown drains what was accepted.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Pusher is satisfied by crm.Service.
type Pusher interface {
	PushEntity(ctx context.Context, entityID uuid.UUID) error
}
