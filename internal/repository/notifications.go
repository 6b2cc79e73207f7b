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

type NotificationRepository interface {
	// InsertIfAbsent relies on UNIQUE (requirement_id, notice_type, notice_date) and reports whether a row was added.
	InsertIfAbsent(ctx context.Context, n *entity.Notification) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Notification, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Notification, error)
	List(ctx context.Context, accountID uuid.UUID, status *constants.NotificationStatus, limit int) ([]*entity.Notification, error)
	ListByRequirement(ctx context.Context, requirementID uuid.UUID) ([]*entity.Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID, subject, body, externalID string, sentAt time.Time) error
	// RecordFailure bumps delivery_attempts and fails the row once maxAttempts is reached.
	RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int) (constants.NotificationStatus, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

type notificationRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewNotificationRepository(db *DB, logger *slog.Logger) NotificationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &notificationRepository{db: db, logger: logger}
}

var notificationColumns = []string{
	"id", "account_id", "requirement_id", "recipient_id", "notice_type", "notice_date", "threshold_days",
	"channel", "template_code", "subject", "body", "context", "status", "delivery_attempts", "last_error",
	"external_id", "scheduled_at", "sent_at", "read_at", "created_at",
}

func (r *notificationRepository) InsertIfAbsent(ctx context.Context, n *entity.Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = constants.NotificationPending
	}
	if n.Channel == "" {
		n.Channel = "email"
	}
	n.CreatedAt = time.Now().UTC()
	if n.ScheduledAt.IsZero() {
		n.ScheduledAt = n.CreatedAt
	}
	noticeDate := n.NoticeDate
	q := r.db.builder().Insert(tableNotifications).Columns(notificationColumns...).Values(
		n.ID, n.AccountID, n.RequirementID, uuidArg(n.RecipientID), string(n.Type), dateArg(&noticeDate),
		intArg(n.ThresholdDays), n.Channel, strArg(n.TemplateCode), strArg(n.Subject), strArg(n.Body),
		mustJSON(n.Context), string(n.Status), n.DeliveryAttempts, strArg(n.LastError), strArg(n.ExternalID),
		n.ScheduledAt.UTC(), timeArg(n.SentAt), timeArg(n.ReadAt), n.CreatedAt,
	).OnConflict(entsql.ConflictColumns("requirement_id", "notice_type", "notice_date"), entsql.DoNothing())
	affected, err := r.db.exec(ctx, q)
	if err != nil {
		r.logger.Error("failed to insert notification", "requirement_id", n.RequirementID, "error", err)
		return false, dbError("insert notification", err)
	}
	return affected == 1, nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Notification, error) {
	b := r.db.builder()
	out, err := r.list(ctx, b.Select(notificationColumns...).From(b.Table(tableNotifications)).Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFoundf("notification %s", id)
	}
	return out[0], nil
}

func (r *notificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Notification, error) {
	b := r.db.builder()
	q := b.Select(notificationColumns...).From(b.Table(tableNotifications)).Where(entsql.And(
		entsql.EQ("status", string(constants.NotificationPending)),
		entsql.LTE("scheduled_at", now.UTC()),
	)).OrderBy("scheduled_at", "id").Limit(limit)
	return r.list(ctx, q)
}

func (r *notificationRepository) List(ctx context.Context, accountID uuid.UUID, status *constants.NotificationStatus, limit int) ([]*entity.Notification, error) {
	b := r.db.builder()
	p := entsql.EQ("account_id", accountID)
	if status != nil {
		p = entsql.And(p, entsql.EQ("status", string(*status)))
	}
	q := b.Select(notificationColumns...).From(b.Table(tableNotifications)).Where(p).OrderBy(entsql.Desc("created_at"))
	if limit > 0 {
		q.Limit(limit)
	}
	return r.list(ctx, q)
}

func (r *notificationRepository) ListByRequirement(ctx context.Context, requirementID uuid.UUID) ([]*entity.Notification, error) {
	b := r.db.builder()
	return r.list(ctx, b.Select(notificationColumns...).From(b.Table(tableNotifications)).
		Where(entsql.EQ("requirement_id", requirementID)).OrderBy("notice_date", "notice_type"))
}

func (r *notificationRepository) MarkSent(ctx context.Context, id uuid.UUID, subject, body, externalID string, sentAt time.Time) error {
	u := r.db.builder().Update(tableNotifications).
		Set("status", string(constants.NotificationSent)).
		Set("subject", subject).
		Set("body", body).
		Set("sent_at", sentAt.UTC()).
		Set("last_error", nil)
	if externalID != "" {
		u.Set("external_id", externalID)
	}
	n, err := r.db.exec(ctx, u.Where(entsql.EQ("id", id)))
	if err != nil {
		return dbError("mark notification sent", err)
	}
	if n == 0 {
		return common.NotFoundf("notification %s", id)
	}
	return nil
}

func (r *notificationRepository) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int) (constants.NotificationStatus, error) {
	var status constants.NotificationStatus
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		bump := r.db.builder().Update(tableNotifications).
			Add("delivery_attempts", 1).
			Set("last_error", errMsg).
			Where(entsql.EQ("id", id))
		if n, err := r.db.exec(ctx, bump); err != nil {
			return dbError("record notification failure", err)
		} else if n == 0 {
			return common.NotFoundf("notification %s", id)
		}
		fail := r.db.builder().Update(tableNotifications).
			Set("status", string(constants.NotificationFailed)).
			Where(entsql.And(entsql.EQ("id", id), entsql.GTE("delivery_attempts", maxAttempts)))
		n, err := r.db.exec(ctx, fail)
		if err != nil {
			return dbError("fail notification", err)
		}
		status = constants.NotificationPending
		if n == 1 {
			status = constants.NotificationFailed
		}
		return nil
	})
	return status, err
}

func (r *notificationRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	q := r.db.builder().Update(tableNotifications).
		Set("status", string(constants.NotificationFailed)).
		Add("delivery_attempts", 1).
		Set("last_error", errMsg).
		Where(entsql.EQ("id", id))
	if _, err := r.db.exec(ctx, q); err != nil {
		return dbError("fail notification", err)
	}
	return nil
}

func (r *notificationRepository) list(ctx context.Context, q querier) ([]*entity.Notification, error) {
	var out []*entity.Notification
	err := r.db.query(ctx, q, func(rows *entsql.Rows) error {
		var (
			n                                                entity.Notification
			recipient                                        uuid.NullUUID
			noticeType, noticeDate, status                   string
			threshold                                        sql.NullInt64
			templateCode, subject, body, lastErr, externalID sql.NullString
			rawCtx                                           []byte
			sentAt, readAt                                   sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.AccountID, &n.RequirementID, &recipient, &noticeType, &noticeDate, &threshold,
			&n.Channel, &templateCode, &subject, &body, &rawCtx, &status, &n.DeliveryAttempts, &lastErr,
			&externalID, &n.ScheduledAt, &sentAt, &readAt, &n.CreatedAt); err != nil {
			return err
		}
		n.RecipientID = nullUUID(recipient)
		n.Type = constants.NotificationType(noticeType)
		if d := parseDateCol(sql.NullString{String: noticeDate, Valid: true}); d != nil {
			n.NoticeDate = *d
		}
		n.ThresholdDays = nullInt(threshold)
		n.TemplateCode, n.Subject, n.Body = nullStr(templateCode), nullStr(subject), nullStr(body)
		n.LastError, n.ExternalID = nullStr(lastErr), nullStr(externalID)
		n.Status = constants.NotificationStatus(status)
		n.ScheduledAt = n.ScheduledAt.UTC()
		n.SentAt, n.ReadAt = nullTime(sentAt), nullTime(readAt)
		if err := decodeJSON(rawCtx, &n.Context); err != nil {
			return err
		}
		out = append(out, &n)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to query notifications", "error", err)
		return nil, dbError("query notifications", err)
	}
	return out, nil
}
