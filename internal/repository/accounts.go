package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
)

type AccountRepository interface {
	Create(ctx context.Context, a *entity.Account) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Account, error)
	ListActive(ctx context.Context) ([]*entity.Account, error)
	UpdateCRMSettings(ctx context.Context, id uuid.UUID, settings entity.CRMSettings) error
	RecordSync(ctx context.Context, id uuid.UUID, at time.Time, status string) error
}

type accountRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewAccountRepository(db *DB, logger *slog.Logger) AccountRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &accountRepository{db: db, logger: logger}
}

var accountColumns = []string{"id", "name", "niche_id", "active", "crm_settings", "notification_overrides", "created_at", "updated_at"}

func (r *accountRepository) Create(ctx context.Context, a *entity.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	q := r.db.builder().Insert(tableAccounts).Columns(accountColumns...).
		Values(a.ID, a.Name, a.NicheID, a.Active, mustJSON(a.CRM), mustJSON(a.NotificationOverrides), now, now)
	if _, err := r.db.exec(ctx, q); err != nil {
		r.logger.Error("failed to create account", "account_id", a.ID, "error", err)
		return dbError("create account", err)
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	b := r.db.builder()
	q := b.Select(accountColumns...).From(b.Table(tableAccounts)).Where(entsql.EQ("id", id))
	out, err := r.list(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFoundf("account %s", id)
	}
	return out[0], nil
}

func (r *accountRepository) ListActive(ctx context.Context) ([]*entity.Account, error) {
	b := r.db.builder()
	q := b.Select(accountColumns...).From(b.Table(tableAccounts)).
		Where(entsql.EQ("active", true)).OrderBy("created_at")
	return r.list(ctx, q)
}

func (r *accountRepository) UpdateCRMSettings(ctx context.Context, id uuid.UUID, settings entity.CRMSettings) error {
	val, err := jsonArg(settings)
	if err != nil {
		return common.InvalidInputf("crm settings: %v", err)
	}
	q := r.db.builder().Update(tableAccounts).
		Set("crm_settings", val).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id))
	n, err := r.db.exec(ctx, q)
	if err != nil {
		return dbError("update crm settings", err)
	}
	if n == 0 {
		return common.NotFoundf("account %s", id)
	}
	return nil
}

// RecordSync stamps last_sync_at and last_sync_status inside the stored CRM settings.
func (r *accountRepository) RecordSync(ctx context.Context, id uuid.UUID, at time.Time, status string) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		acc, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		at = at.UTC()
		acc.CRM.LastSyncAt = &at
		acc.CRM.LastSyncStatus = status
		return r.UpdateCRMSettings(ctx, id, acc.CRM)
	})
}

func (r *accountRepository) list(ctx context.Context, q querier) ([]*entity.Account, error) {
	var out []*entity.Account
	err := r.db.query(ctx, q, func(rows *entsql.Rows) error {
		var (
			a                 entity.Account
			crmRaw, overrides []byte
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.NicheID, &a.Active, &crmRaw, &overrides, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return err
		}
		if err := decodeJSON(crmRaw, &a.CRM); err != nil {
			return err
		}
		if err := decodeJSON(overrides, &a.NotificationOverrides); err != nil {
			return err
		}
		out = append(out, &a)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to query accounts", "error", err)
		return nil, dbError("query accounts", err)
	}
	return out, nil
}
