// Package entities is the boundary CRUD for tracked entities. Every write fires the
// matching workflow event and queues a CRM push.
package entities

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/internal/async"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/workflow"
)

// Events fires workflow rules; satisfied by *workflow.Engine.
type Events interface {
	Fire(ctx context.Context, event niche.TriggerEvent, subj *workflow.Subject) (workflow.Result, error)
}

// Service handles entity business logic.
type Service struct {
	store  *repository.Store
	niches *niche.Store
	events Events
	queue  async.Queue
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a new entity service. A nil queue disables CRM pushes.
func NewService(store *repository.Store, niches *niche.Store, events Events, queue async.Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, niches: niches, events: events, queue: queue, now: time.Now, logger: logger}
}

// CreateInput represents entity creation parameters.
type CreateInput struct {
	AccountID    uuid.UUID      `json:"-"`
	TypeCode     string         `json:"entity_type"`
	Name         string         `json:"name"`
	Email        *string        `json:"email"`
	Phone        *string        `json:"phone"`
	Address      *string        `json:"address"`
	CustomFields map[string]any `json:"custom_fields"`
}

// Create validates the entity against the account's niche and stores it.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Entity, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.TypeCode = strings.TrimSpace(in.TypeCode)
	err := common.NewValidator().
		Field("name", in.Name, common.Required, common.MaxLength(255)).
		Field("entity_type", in.TypeCode, common.Required).
		Field("email", in.Email, common.Email, common.MaxLength(255)).
		Field("phone", in.Phone, common.MaxLength(50)).
		Err()
	if err != nil {
		return nil, err
	}

	acc, reg, err := s.account(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	et, ok := reg.EntityType(in.TypeCode)
	if !ok {
		return nil, common.InvalidInputf("entity_type %q is not defined for niche %s", in.TypeCode, reg.ID())
	}
	if err := checkCustomFields(et, in.CustomFields, true); err != nil {
		return nil, err
	}

	e := &entity.Entity{
		AccountID:    acc.ID,
		TypeCode:     et.Code,
		Name:         in.Name,
		Email:        blankNil(in.Email),
		Phone:        blankNil(in.Phone),
		Address:      blankNil(in.Address),
		CustomFields: in.CustomFields,
	}
	if err := s.store.Entities.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("entity.create.ok", "entity_id", e.ID, "account_id", acc.ID, "type", e.TypeCode)
	s.after(ctx, niche.EventEntityCreated, reg, acc, e)
	return e, nil
}

// Update applies patch to an entity of the account.
func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, patch entity.EntityPatch) (*entity.Entity, error) {
	v := common.NewValidator()
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
		v.Field("name", trimmed, common.Required, common.MaxLength(255))
	}
	v.Field("email", patch.Email, common.Email, common.MaxLength(255)).
		Field("phone", patch.Phone, common.MaxLength(50))
	if err := v.Err(); err != nil {
		return nil, err
	}

	cur, err := s.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	acc, reg, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if patch.CustomFields != nil {
		et, _ := reg.EntityType(cur.TypeCode)
		if err := checkCustomFields(et, patch.CustomFields, false); err != nil {
			return nil, err
		}
	}
	e, err := s.store.Entities.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("entity.update.ok", "entity_id", e.ID, "account_id", accountID)
	s.after(ctx, niche.EventEntityUpdated, reg, acc, e)
	return e, nil
}

// Get returns an entity only when it belongs to accountID.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*entity.Entity, error) {
	e, err := s.store.Entities.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.AccountID != accountID {
		return nil, common.NotFoundf("entity %s", id)
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]*entity.Entity, error) {
	return s.store.Entities.List(ctx, accountID)
}

func (s *Service) account(ctx context.Context, accountID uuid.UUID) (*entity.Account, *niche.Registry, error) {
	acc, err := s.store.Accounts.Get(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	reg, err := s.niches.Lookup(acc.NicheID)
	if err != nil {
		return nil, nil, err
	}
	return acc, reg, nil
}

// after runs the workflow event and queues the CRM push. Neither can fail the write.
func (s *Service) after(ctx context.Context, event niche.TriggerEvent, reg *niche.Registry, acc *entity.Account, e *entity.Entity) {
	if s.events != nil {
		if _, err := s.events.Fire(ctx, event, &workflow.Subject{Registry: reg, Account: acc, Entity: e}); err != nil {
			s.logger.Error("entity.workflow.error", "entity_id", e.ID, "event", event, "error", err)
		}
	}
	if s.queue == nil || !acc.CRM.Enabled {
		return
	}
	if err := s.queue.Enqueue(ctx, async.Job{EntityID: e.ID, AccountID: acc.ID, Trigger: string(event), SubmittedAt: s.now().UTC()}); err != nil {
		s.logger.Warn("entity.push.enqueue_failed", "entity_id", e.ID, "error", err)
	}
}

// checkCustomFields rejects unknown names and out-of-range select values.
// Required fields are enforced only on create.
func checkCustomFields(et niche.EntityTypeDef, values map[string]any, create bool) error {
	defs := make(map[string]niche.CustomField, len(et.Fields))
	for _, f := range et.Fields {
		defs[f.Name] = f
	}
	v := common.NewValidator()
	for name, val := range values {
		def, ok := defs[name]
		if !ok {
			return common.InvalidInputf("custom_fields: unknown field %q for entity type %s", name, et.Code)
		}
		if def.Type == "select" && len(def.Options) > 0 && val != nil {
			v.Field("custom_fields."+name, fmt.Sprint(val), common.OneOf(def.Options...))
		}
	}
	if create {
		for _, def := range et.Fields {
			if def.Required {
				v.Field("custom_fields."+def.Name, values[def.Name], common.Required)
			}
		}
	}
	return v.Err()
}

func blankNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
