package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
)

type EntityRepository interface {
	Create(ctx context.Context, e *entity.Entity) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Entity, error)
	Update(ctx context.Context, id uuid.UUID, patch entity.EntityPatch) (*entity.Entity, error)
	List(ctx context.Context, accountID uuid.UUID) ([]*entity.Entity, error)
	ListLinked(ctx context.Context, accountID uuid.UUID) ([]*entity.Entity, error)
	FindUnlinkedByEmail(ctx context.Context, accountID uuid.UUID, email string) (*entity.Entity, error)
	FindByExternalID(ctx context.Context, accountID uuid.UUID, externalID string) (*entity.Entity, error)
	SetExternalID(ctx context.Context, id uuid.UUID, externalID, source string) error
}

type entityRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewEntityRepository(db *DB, logger *slog.Logger) EntityRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &entityRepository{db: db, logger: logger}
}

var entityColumns = []string{
	"id", "account_id", "type_code", "name", "email", "phone", "address",
	"custom_fields", "external_id", "external_source", "created_at", "updated_at",
}

func normEmail(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	if v == "" {
		return nil
	}
	return &v
}

func (r *entityRepository) Create(ctx context.Context, e *entity.Entity) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	e.Email = normEmail(e.Email)
	custom, err := jsonArg(e.CustomFields)
	if err != nil {
		return common.InvalidInputf("custom_fields: %v", err)
	}
	q := r.db.builder().Insert(tableEntities).Columns(entityColumns...).Values(
		e.ID, e.AccountID, e.TypeCode, e.Name, strArg(e.Email), strArg(e.Phone), strArg(e.Address),
		custom, strArg(e.ExternalID), strArg(e.ExternalSource), now, now,
	)
	if _, err := r.db.exec(ctx, q); err != nil {
		r.logger.Error("failed to create entity", "account_id", e.AccountID, "error", err)
		return dbError("create entity", err)
	}
	return nil
}

func (r *entityRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Entity, error) {
	b := r.db.builder()
	out, err := r.list(ctx, b.Select(entityColumns...).From(b.Table(tableEntities)).Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFoundf("entity %s", id)
	}
	return out[0], nil
}

// Update applies the non-nil patch fields. The entity type is never changed.
func (r *entityRepository) Update(ctx context.Context, id uuid.UUID, patch entity.EntityPatch) (*entity.Entity, error) {
	u := r.db.builder().Update(tableEntities).Set("updated_at", time.Now().UTC())
	if patch.Name != nil {
		u.Set("name", *patch.Name)
	}
	if patch.Email != nil {
		u.Set("email", strArg(normEmail(patch.Email)))
	}
	if patch.Phone != nil {
		u.Set("phone", *patch.Phone)
	}
	if patch.Address != nil {
		u.Set("address", *patch.Address)
	}
	if patch.CustomFields != nil {
		custom, err := jsonArg(patch.CustomFields)
		if err != nil {
			return nil, common.InvalidInputf("custom_fields: %v", err)
		}
		u.Set("custom_fields", custom)
	}
	n, err := r.db.exec(ctx, u.Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, dbError("update entity", err)
	}
	if n == 0 {
		return nil, common.NotFoundf("entity %s", id)
	}
	return r.Get(ctx, id)
}

func (r *entityRepository) List(ctx context.Context, accountID uuid.UUID) ([]*entity.Entity, error) {
	b := r.db.builder()
	return r.list(ctx, b.Select(entityColumns...).From(b.Table(tableEntities)).
		Where(entsql.EQ("account_id", accountID)).OrderBy("name"))
}

// ListLinked returns entities that carry a CRM external id.
func (r *entityRepository) ListLinked(ctx context.Context, accountID uuid.UUID) ([]*entity.Entity, error) {
	b := r.db.builder()
	return r.list(ctx, b.Select(entityColumns...).From(b.Table(tableEntities)).
		Where(entsql.And(entsql.EQ("account_id", accountID), entsql.NotNull("external_id"))).OrderBy("name"))
}

func (r *entityRepository) FindUnlinkedByEmail(ctx context.Context, accountID uuid.UUID, email string) (*entity.Entity, error) {
	b := r.db.builder()
	out, err := r.list(ctx, b.Select(entityColumns...).From(b.Table(tableEntities)).Where(entsql.And(
		entsql.EQ("account_id", accountID),
		entsql.EQ("email", strings.ToLower(strings.TrimSpace(email))),
		entsql.IsNull("external_id"),
	)).OrderBy("created_at").Limit(1))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFoundf("entity with email %s", email)
	}
	return out[0], nil
}

func (r *entityRepository) FindByExternalID(ctx context.Context, accountID uuid.UUID, externalID string) (*entity.Entity, error) {
	b := r.db.builder()
	out, err := r.list(ctx, b.Select(entityColumns...).From(b.Table(tableEntities)).Where(entsql.And(
		entsql.EQ("account_id", accountID),
		entsql.EQ("external_id", externalID),
	)).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFoundf("entity with external id %s", externalID)
	}
	return out[0], nil
}

func (r *entityRepository) SetExternalID(ctx context.Context, id uuid.UUID, externalID, source string) error {
	q := r.db.builder().Update(tableEntities).
		Set("external_id", externalID).
		Set("external_source", source).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id))
	n, err := r.db.exec(ctx, q)
	if err != nil {
		return dbError("set external id", err)
	}
	if n == 0 {
		return common.NotFoundf("entity %s", id)
	}
	return nil
}

func (r *entityRepository) list(ctx context.Context, q querier) ([]*entity.Entity, error) {
	var out []*entity.Entity
	err := r.db.query(ctx, q, func(rows *entsql.Rows) error {
		var (
			e                                  entity.Entity
			email, phone, address, ext, extSrc sql.NullString
			custom                             []byte
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.TypeCode, &e.Name, &email, &phone, &address,
			&custom, &ext, &extSrc, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return err
		}
		e.Email, e.Phone, e.Address = nullStr(email), nullStr(phone), nullStr(address)
		e.ExternalID, e.ExternalSource = nullStr(ext), nullStr(extSrc)
		if err := decodeJSON(custom, &e.CustomFields); err != nil {
			return err
		}
		out = append(out, &e)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to query entities", "error", err)
		return nil, dbError("query entities", err)
	}
	return out, nil
}
