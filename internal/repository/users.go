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

type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	Get(ctx context.Context, id uuid.UUID) (*entity.User, error)
	GetByEmail(ctx context.Context, accountID uuid.UUID, email string) (*entity.User, error)
	// FirstActive returns the earliest active user, preferring role when it is non-empty.
	FirstActive(ctx context.Context, accountID uuid.UUID, role string) (*entity.User, error)
}

type userRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewUserRepository(db *DB, logger *slog.Logger) UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &userRepository{db: db, logger: logger}
}

var userColumns = []string{"id", "account_id", "email", "first_name", "last_name", "role", "active", "created_at"}

func (r *userRepository) Create(ctx context.Context, u *entity.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = entity.RoleMember
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = time.Now().UTC()
	q := r.db.builder().Insert(tableUsers).Columns(userColumns...).
		Values(u.ID, u.AccountID, u.Email, u.FirstName, u.LastName, u.Role, u.Active, u.CreatedAt)
	if _, err := r.db.exec(ctx, q); err != nil {
		r.logger.Error("failed to create user", "account_id", u.AccountID, "error", err)
		return dbError("create user", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	b := r.db.builder()
	return r.one(ctx, b.Select(userColumns...).From(b.Table(tableUsers)).Where(entsql.EQ("id", id)), "user "+id.String())
}

func (r *userRepository) GetByEmail(ctx context.Context, accountID uuid.UUID, email string) (*entity.User, error) {
	b := r.db.builder()
	q := b.Select(userColumns...).From(b.Table(tableUsers)).Where(entsql.And(
		entsql.EQ("account_id", accountID),
		entsql.EQ("email", strings.ToLower(strings.TrimSpace(email))),
	))
	return r.one(ctx, q, "user "+email)
}

func (r *userRepository) FirstActive(ctx context.Context, accountID uuid.UUID, role string) (*entity.User, error) {
	b := r.db.builder()
	if role != "" {
		q := b.Select(userColumns...).From(b.Table(tableUsers)).Where(entsql.And(
			entsql.EQ("account_id", accountID),
			entsql.EQ("active", true),
			entsql.EQ("role", role),
		)).OrderBy("created_at").Limit(1)
		if u, err := r.one(ctx, q, "user"); err == nil {
			return u, nil
		} else if !common.IsNotFound(err) {
			return nil, err
		}
	}
	q := b.Select(userColumns...).From(b.Table(tableUsers)).Where(entsql.And(
		entsql.EQ("account_id", accountID),
		entsql.EQ("active", true),
	)).OrderBy("created_at").Limit(1)
	return r.one(ctx, q, "active user for account "+accountID.String())
}

func (r *userRepository) one(ctx context.Context, q querier, what string) (*entity.User, error) {
	var out *entity.User
	err := r.db.query(ctx, q, func(rows *entsql.Rows) error {
		var (
			u           entity.User
			first, last sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.AccountID, &u.Email, &first, &last, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return err
		}
		u.FirstName, u.LastName = first.String, last.String
		if out == nil {
			out = &u
		}
		return nil
	})
	if err != nil {
		return nil, dbError("query users", err)
	}
	if out == nil {
		return nil, common.NotFoundf("%s", what)
	}
	return out, nil
}
