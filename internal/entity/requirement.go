package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

// Requirement is a compliance obligation of one entity for one requirement type.
// DueDate and CompletedDate are calendar days at UTC midnight.
type Requirement struct {
	ID                  uuid.UUID                   `json:"id"`
	AccountID           uuid.UUID                   `json:"account_id"`
	EntityID            uuid.UUID                   `json:"entity_id"`
	RequirementTypeCode string                      `json:"requirement_type"`
	Name                string                      `json:"name"`
	DueDate             *time.Time                  `json:"due_date,omitempty"`
	Status              constants.RequirementStatus `json:"status"`
	Priority            string                      `json:"priority"`
	DocumentID          *uuid.UUID                  `json:"document_id,omitempty"`
	AssigneeID          *uuid.UUID                  `json:"assignee_id,omitempty"`
	ManualOverride      bool                        `json:"manual_override"`
	OverrideAt          *time.Time                  `json:"override_at,omitempty"`
	CompletedDate       *time.Time                  `json:"completed_date,omitempty"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

// RequirementStatusEvent is one row of the requirement audit trail.
type RequirementStatusEvent struct {
	ID            uuid.UUID                   `json:"id"`
	RequirementID uuid.UUID                   `json:"requirement_id"`
	FromStatus    constants.RequirementStatus `json:"from_status"`
	ToStatus      constants.RequirementStatus `json:"to_status"`
	Source        constants.StatusSource      `json:"source"`
	ActorID       *uuid.UUID                  `json:"actor_id,omitempty"`
	Reason        string                      `json:"reason,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
}
