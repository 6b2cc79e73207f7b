package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
)

// RequirementFilter narrows list and count queries. Zero values match everything.
type RequirementFilter struct {
	AccountID  *uuid.UUID
	EntityID   *uuid.UUID
	HasDueDate bool
}

type RequirementRepository interface {
	// Create inserts the requirement unless one already exists for (entity_id, requirement_type_code).
	// It reports whether a row was inserted and fills r with the stored row either way.
	Create(ctx context.Context, r *entity.Requirement) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Requirement, error)
	GetByKey(ctx context.Context, entityID uuid.UUID, requirementType string) (*entity.Requirement, error)
	List(ctx context.Context, f RequirementFilter) ([]*entity.Requirement, error)
	Save(ctx context.Context, r *entity.Requirement) error
	CountByStatus(ctx context.Context, f RequirementFilter) (map[constants.RequirementStatus]int, error)
	AppendEvent(ctx context.Context, ev *entity.RequirementStatusEvent) error
	ListEvents(ctx context.Context, requirementID uuid.UUID) ([]*entity.RequirementStatusEvent, error)
}

type requirementRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewRequirementRepository(db *DB, logger *slog.Logger) RequirementRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &requirementRepository{db: db, logger: logger}
}

var requirementColumns = []string{
	"id", "account_id", "entity_id", "requirement_type_code", "name", "due_date", "status", "priority",
	"document_id", "assignee_id", "manual_override", "override_at", "completed_date", "created_at", "updated_at",
}

func (r *requirementRepository) Create(ctx context.Context, req *entity.Requirement) (bool, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = constants.RequirementPending
	}
	now := time.Now().UTC()
	req.CreatedAt, req.UpdatedAt = now, now
	q := r.db.builder().Insert(tableRequirements).Columns(requirementColumns...).Values(
		req.ID, req.AccountID, req.EntityID, req.RequirementTypeCode, req.Name, dateArg(req.DueDate),
		string(req.Status), req.Priority, uuidArg(req.DocumentID), uuidArg(req.AssigneeID),
		req.ManualOverride, timeArg(req.OverrideAt), dateArg(req.CompletedDate), now, now,
	).OnConflict(entsql.ConflictColumns("entity_id", "requirement_type_code"), entsql.DoNothing())
	n, err := r.db.exec(ctx, q)
	if err != nil {
		r.logger.Error("failed to create requirement", "entity_id", req.EntityID, "error", err)
		return false, dbError("create requirement", err)
	}
	if n == 0 {
		existing, err := r.GetByKey(ctx, req.EntityID, req.RequirementTypeCode)
		if err != nil {
			return false, err
		}
		*req = *existing
		return false, nil
	}
	return true, nil
}

func (r *requirementRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Requirement, error) {
	b := r.db.builder()
	out, err := r.list(ctx, b.Select(requirementColumns...).From(b.Table(tableRequirements)).Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFoundf("requirement %s", id)
	}
	return out[0], nil
}

func (r *requirementRepository) GetByKey(ctx context.Context, entityID uuid.UUID, requirementType string) (*entity.Requirement, error) {
	b := r.db.builder()
	out, err := r.list(ctx, b.Select(requirementColumns...).From(b.Table(tableRequirements)).Where(entsql.And(
		entsql.EQ("entity_id", entityID),
		entsql.EQ("requirement_type_code", requirementType),
	)))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFoundf("requirement %s for entity %s", requirementType, entityID)
	}
	return out[0], nil
}

func (f RequirementFilter) predicate() *entsql.Predicate {
	var ps []*entsql.Predicate
	if f.AccountID != nil {
		ps = append(ps, entsql.EQ("account_id", *f.AccountID))
	}
	if f.EntityID != nil {
		ps = append(ps, entsql.EQ("entity_id", *f.EntityID))
	}
	if f.HasDueDate {
		ps = append(ps, entsql.NotNull("due_date"))
	}
	if len(ps) == 0 {
		return nil
	}
	return entsql.And(ps...)
}

func (r *requirementRepository) List(ctx context.Context, f RequirementFilter) ([]*entity.Requirement, error) {
	b := r.db.builder()
	q := b.Select(requirementColumns...).From(b.Table(tableRequirements))
	if p := f.predicate(); p != nil {
		q.Where(p)
	}
	return r.list(ctx, q.OrderBy("created_at", "id"))
}

// Save writes every mutable column of the requirement.
func (r *requirementRepository) Save(ctx context.Context, req *entity.Requirement) error {
	req.UpdatedAt = time.Now().UTC()
	q := r.db.builder().Update(tableRequirements).
		Set("name", req.Name).
		Set("due_date", dateArg(req.DueDate)).
		Set("status", string(req.Status)).
		Set("priority", req.Priority).
		Set("document_id", uuidArg(req.DocumentID)).
		Set("assignee_id", uuidArg(req.AssigneeID)).
		Set("manual_override", req.ManualOverride).
		Set("override_at", timeArg(req.OverrideAt)).
		Set("completed_date", dateArg(req.CompletedDate)).
		Set("updated_at", req.UpdatedAt).
		Where(entsql.EQ("id", req.ID))
	n, err := r.db.exec(ctx, q)
	if err != nil {
		return dbError("save requirement", err)
	}
	if n == 0 {
		return common.NotFoundf("requirement %s", req.ID)
	}
	return nil
}

func (r *requirementRepository) CountByStatus(ctx context.Context, f RequirementFilter) (map[constants.RequirementStatus]int, error) {
	b := r.db.builder()
	q := b.Select("status", entsql.Count("*")).From(b.Table(tableRequirements))
	if p := f.predicate(); p != nil {
		q.Where(p)
	}
	q.GroupBy("status")

	out := make(map[constants.RequirementStatus]int, len(constants.RequirementStatuses))
	for _, s := range constants.RequirementStatuses {
		out[s] = 0
	}
	err := r.db.query(ctx, q, func(rows *entsql.Rows) error {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		out[constants.RequirementStatus(status)] = n
		return nil
	})
	if err != nil {
		return nil, dbError("count requirements", err)
	}
	return out, nil
}

func (r *requirementRepository) AppendEvent(ctx context.Context, ev *entity.RequirementStatusEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.CreatedAt = time.Now().UTC()
	var reason any
	if ev.Reason != "" {
		reason = ev.Reason
	}
	q := r.db.builder().Insert(tableRequirementEvents).
		Columns("id", "requirement_id", "from_status", "to_status", "source", "actor_id", "reason", "created_at").
		Values(ev.ID, ev.RequirementID, string(ev.FromStatus), string(ev.ToStatus), string(ev.Source),
			uuidArg(ev.ActorID), reason, ev.CreatedAt)
	if _, err := r.db.exec(ctx, q); err != nil {
		return dbError("append requirement event", err)
	}
	return nil
}

func (r *requirementRepository) ListEvents(ctx context.Context, requirementID uuid.UUID) ([]*entity.RequirementStatusEvent, error) {
	b := r.db.builder()
	q := b.Select("id", "requirement_id", "from_status", "to_status", "source", "actor_id", "reason", "created_at").
		From(b.Table(tableRequirementEvents)).
		Where(entsql.EQ("requirement_id", requirementID)).
		OrderBy("created_at")
	var out []*entity.RequirementStatusEvent
	err := r.db.query(ctx, q, func(rows *entsql.Rows) error {
		var (
			ev               entity.RequirementStatusEvent
			from, to, source string
			actor            uuid.NullUUID
			reason           sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.RequirementID, &from, &to, &source, &actor, &reason, &ev.CreatedAt); err != nil {
			return err
		}
		ev.FromStatus = constants.RequirementStatus(from)
		ev.ToStatus = constants.RequirementStatus(to)
		ev.Source = constants.StatusSource(source)
		ev.ActorID = nullUUID(actor)
		ev.Reason = reason.String
		out = append(out, &ev)
		return nil
	})
	if err != nil {
		return nil, dbError("list requirement events", err)
	}
	return out, nil
}

func (r *requirementRepository) list(ctx context.Context, q querier) ([]*entity.Requirement, error) {
	var out []*entity.Requirement
	err := r.db.query(ctx, q, func(rows *entsql.Rows) error {
		var (
			req             entity.Requirement
			due, completed  sql.NullString
			status          string
			docID, assignee uuid.NullUUID
			overrideAt      sql.NullTime
		)
		if err := rows.Scan(&req.ID, &req.AccountID, &req.EntityID, &req.RequirementTypeCode, &req.Name, &due,
			&status, &req.Priority, &docID, &assignee, &req.ManualOverride, &overrideAt, &completed,
			&req.CreatedAt, &req.UpdatedAt); err != nil {
			return err
		}
		req.DueDate, req.CompletedDate = parseDateCol(due), parseDateCol(completed)
		req.Status = constants.RequirementStatus(status)
		req.DocumentID, req.AssigneeID = nullUUID(docID), nullUUID(assignee)
		req.OverrideAt = nullTime(overrideAt)
		out = append(out, &req)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to query requirements", "error", err)
		return nil, dbError("query requirements", err)
	}
	return out, nil
}
