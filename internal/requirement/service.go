package requirement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
)

// Events receives the status transitions found by RefreshAll.
type Events interface {
	RequirementTransitioned(ctx context.Context, req *entity.Requirement, event niche.TriggerEvent) error
}

// Summary is the count of requirements by persisted status.
type Summary struct {
	Total  int                                 `json:"total"`
	Counts map[constants.RequirementStatus]int `json:"counts"`
}

// RefreshStats reports one RefreshAll run.
type RefreshStats struct {
	Checked int
	Changed int
	Failed  int
}

type Service struct {
	store  *repository.Store
	niches *niche.Store
	events Events
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Service)

// WithClock overrides time.Now for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store *repository.Store, niches *niche.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, niches: niches, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEvents wires the workflow engine after both are constructed.
func (s *Service) SetEvents(ev Events) { s.events = ev }

// Today is the current calendar day in UTC.
func (s *Service) Today() time.Time { return Day(s.now()) }

// Refresh re-derives one requirement and persists the result.
// A changed status writes an auto status event.
func (s *Service) Refresh(ctx context.Context, id uuid.UUID, today time.Time) (*entity.Requirement, error) {
	req, err := s.store.Requirements.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.refresh(ctx, req, today); err != nil {
		return nil, err
	}
	return req, nil
}

// refresh returns the previous status when it changed, or "" when it did not.
func (s *Service) refresh(ctx context.Context, req *entity.Requirement, today time.Time) (constants.RequirementStatus, error) {
	window, err := s.windowDays(ctx, req)
	if err != nil {
		return "", err
	}
	var linked constants.DocumentStatus
	if req.DocumentID != nil {
		doc, err := s.store.Documents.Get(ctx, *req.DocumentID)
		switch {
		case err == nil:
			linked = doc.Status
		case !common.IsNotFound(err):
			return "", err
		}
	}

	next := Derive(Input{
		DueDate:              req.DueDate,
		Today:                today,
		WindowDays:           window,
		LinkedDocumentStatus: linked,
		ManualOverride:       req.ManualOverride,
	})
	if next == req.Status {
		return "", nil
	}

	from := req.Status
	req.Status = next
	err = s.store.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.Requirements.Save(ctx, req); err != nil {
			return err
		}
		return s.store.Requirements.AppendEvent(ctx, &entity.RequirementStatusEvent{
			RequirementID: req.ID,
			FromStatus:    from,
			ToStatus:      next,
			Source:        constants.StatusSourceAuto,
		})
	})
	if err != nil {
		req.Status = from
		return "", err
	}
	s.logger.Info("requirement.status.changed",
		"requirement_id", req.ID, "from", from, "to", next, "source", constants.StatusSourceAuto)
	return from, nil
}

func (s *Service) windowDays(ctx context.Context, req *entity.Requirement) (int, error) {
	reg, err := s.registry(ctx, req.AccountID)
	if err != nil {
		return 0, err
	}
	if rt, ok := reg.RequirementType(req.RequirementTypeCode); ok {
		return rt.WindowDays(), nil
	}
	return niche.DefaultExpiringSoonDays, nil
}

func (s *Service) registry(ctx context.Context, accountID uuid.UUID) (*niche.Registry, error) {
	acc, err := s.store.Accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.niches.Lookup(acc.NicheID)
}

// RefreshAll re-derives every requirement of every active account. Transitions into
// expiring_soon or expired fire the matching workflow event. Per-requirement failures
// are logged and counted without stopping the run.
func (s *Service) RefreshAll(ctx context.Context, today time.Time) (RefreshStats, error) {
	start := time.Now()
	var stats RefreshStats
	accounts, err := s.store.Accounts.ListActive(ctx)
	if err != nil {
		return stats, err
	}
	for _, acc := range accounts {
		accID := acc.ID
		reqs, err := s.store.Requirements.List(ctx, repository.RequirementFilter{AccountID: &accID})
		if err != nil {
			s.logger.Error("requirement.refresh_all.list_error", "account_id", acc.ID, "error", err)
			stats.Failed++
			continue
		}
		for _, req := range reqs {
			stats.Checked++
			from, err := s.refresh(ctx, req, today)
			if err != nil {
				s.logger.Error("requirement.refresh.error", "requirement_id", req.ID, "error", err)
				stats.Failed++
				continue
			}
			if from == "" {
				continue
			}
			stats.Changed++
			s.fireTransition(ctx, req)
		}
	}
	s.logger.Info("requirement.refresh_all.ok",
		"checked", stats.Checked, "changed", stats.Changed, "failed", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds())
	return stats, nil
}

func (s *Service) fireTransition(ctx context.Context, req *entity.Requirement) {
	if s.events == nil {
		return
	}
	var event niche.TriggerEvent
	switch req.Status {
	case constants.RequirementExpiringSoon:
		event = niche.EventRequirementExpiring
	case constants.RequirementExpired:
		event = niche.EventRequirementExpired
	default:
		return
	}
	if err := s.events.RequirementTransitioned(ctx, req, event); err != nil {
		s.logger.Error("requirement.event.error", "requirement_id", req.ID, "event", event, "error", err)
	}
}

// MarkComplete applies the manual override: status compliant until the due date changes.
func (s *Service) MarkComplete(ctx context.Context, id uuid.UUID, actorID *uuid.UUID, reason string) (*entity.Requirement, error) {
	var out *entity.Requirement
	err := s.store.DB.WithTx(ctx, func(ctx context.Context) error {
		req, err := s.store.Requirements.Get(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		today := Day(now)
		from := req.Status
		req.ManualOverride = true
		req.OverrideAt = &now
		req.CompletedDate = &today
		req.Status = constants.RequirementCompliant
		if err := s.store.Requirements.Save(ctx, req); err != nil {
			return err
		}
		if reason == "" {
			reason = "marked complete"
		}
		if err := s.store.Requirements.AppendEvent(ctx, &entity.RequirementStatusEvent{
			RequirementID: req.ID,
			FromStatus:    from,
			ToStatus:      req.Status,
			Source:        constants.StatusSourceManualOverride,
			ActorID:       actorID,
			Reason:        reason,
		}); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("requirement.status.changed",
		"requirement_id", out.ID, "to", out.Status, "source", constants.StatusSourceManualOverride)
	return out, nil
}

// SetDueDate stores a new due date. A changed date clears the manual override;
// callers re-derive afterwards.
func (s *Service) SetDueDate(ctx context.Context, id uuid.UUID, due *time.Time) (*entity.Requirement, error) {
	req, err := s.store.Requirements.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if due != nil {
		d := Day(*due)
		due = &d
	}
	if sameDay(req.DueDate, due) {
		return req, nil
	}
	req.DueDate = due
	if req.ManualOverride {
		req.ManualOverride = false
		req.OverrideAt = nil
		s.logger.Info("requirement.override.cleared", "requirement_id", req.ID)
	}
	if err := s.store.Requirements.Save(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Day(*a).Equal(Day(*b))
}

// Summary counts requirements by persisted status for an account, optionally one entity.
func (s *Service) Summary(ctx context.Context, accountID uuid.UUID, entityID *uuid.UUID) (Summary, error) {
	if accountID == uuid.Nil {
		return Summary{}, common.InvalidInputf("account id is required")
	}
	counts, err := s.store.Requirements.CountByStatus(ctx, repository.RequirementFilter{AccountID: &accountID, EntityID: entityID})
	if err != nil {
		return Summary{}, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return Summary{Total: total, Counts: counts}, nil
}

// Recipient picks who receives notices for req: the assignee, else the first active
// user of the account (preferring role when set). It returns nil when the account has no active user.
func (s *Service) Recipient(ctx context.Context, req *entity.Requirement, role string) (*uuid.UUID, error) {
	if role == "" && req.AssigneeID != nil {
		return req.AssigneeID, nil
	}
	u, err := s.store.Users.FirstActive(ctx, req.AccountID, role)
	if common.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u.ID, nil
}
