package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
)

// SyncLogRepository is append-only: it has no update or delete.
type SyncLogRepository interface {
	Insert(ctx context.Context, l *entity.SyncLog) error
	List(ctx context.Context, accountID uuid.UUID, entityID *uuid.UUID, limit int) ([]*entity.SyncLog, error)
}

type syncLogRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewSyncLogRepository(db *DB, logger *slog.Logger) SyncLogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &syncLogRepository{db: db, logger: logger}
}

var syncLogColumns = []string{
	"id", "account_id", "entity_id", "provider", "operation", "direction", "status", "external_id",
	"duration_ms", "error_message", "request_data", "response_data", "created_at",
}

func (r *syncLogRepository) Insert(ctx context.Context, l *entity.SyncLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Now().UTC()
	q := r.db.builder().Insert(tableCRMSyncLogs).Columns(syncLogColumns...).Values(
		l.ID, l.AccountID, uuidArg(l.EntityID), l.Provider, string(l.Operation), string(l.Direction),
		string(l.Status), strArg(l.ExternalID), l.DurationMS, strArg(l.ErrorMessage),
		mustJSON(l.RequestData), mustJSON(l.ResponseData), l.CreatedAt,
	)
	if _, err := r.db.exec(ctx, q); err != nil {
		r.logger.Error("failed to insert sync log", "account_id", l.AccountID, "provider", l.Provider, "error", err)
		return dbError("insert sync log", err)
	}
	return nil
}

func (r *syncLogRepository) List(ctx context.Context, accountID uuid.UUID, entityID *uuid.UUID, limit int) ([]*entity.SyncLog, error) {
	b := r.db.builder()
	p := entsql.EQ("account_id", accountID)
	if entityID != nil {
		p = entsql.And(p, entsql.EQ("entity_id", *entityID))
	}
	q := b.Select(syncLogColumns...).From(b.Table(tableCRMSyncLogs)).Where(p).OrderBy(entsql.Desc("created_at"))
	if limit > 0 {
		q.Limit(limit)
	}
	var out []*entity.SyncLog
	err := r.db.query(ctx, q, func(rows *entsql.Rows) error {
		var (
			l                 entity.SyncLog
			entID             uuid.NullUUID
			op, dir, status   string
			extID, errMsg     sql.NullString
			reqData, respData []byte
		)
		if err := rows.Scan(&l.ID, &l.AccountID, &entID, &l.Provider, &op, &dir, &status, &extID,
			&l.DurationMS, &errMsg, &reqData, &respData, &l.CreatedAt); err != nil {
			return err
		}
		l.EntityID = nullUUID(entID)
		l.Operation = constants.SyncOperation(op)
		l.Direction = constants.SyncDirection(dir)
		l.Status = constants.SyncStatus(status)
		l.ExternalID, l.ErrorMessage = nullStr(extID), nullStr(errMsg)
		if err := decodeJSON(reqData, &l.RequestData); err != nil {
			return err
		}
		if err := decodeJSON(respData, &l.ResponseData); err != nil {
			return err
		}
		out = append(out, &l)
		return nil
	})
	if err != nil {
		return nil, dbError("list sync logs", err)
	}
	return out, nil
}
