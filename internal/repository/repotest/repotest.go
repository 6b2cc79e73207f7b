// Package repotest opens migrated in-memory sqlite databases for tests.
package repotest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
)

// Logger discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Open returns a fresh migrated store closed at test cleanup.
func Open(t testing.TB) *repository.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := repository.OpenSQLite(context.Background(), dsn, Logger())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	return repository.NewStore(db, Logger())
}

// Fixture is a seeded account with an owner, a member and one vendor entity.
type Fixture struct {
	Account *entity.Account
	Owner   *entity.User
	Member  *entity.User
	Entity  *entity.Entity
}

// Seed inserts a minimal account graph for nicheID.
func Seed(t testing.TB, s *repository.Store, nicheID string) Fixture {
	t.Helper()
	ctx := context.Background()
	acc := &entity.Account{Name: "Acme Builders", NicheID: nicheID, Active: true}
	require.NoError(t, s.Accounts.Create(ctx, acc))

	owner := &entity.User{AccountID: acc.ID, Email: "owner@acme.test", FirstName: "Olive", Role: entity.RoleOwner, Active: true}
	require.NoError(t, s.Users.Create(ctx, owner))
	member := &entity.User{AccountID: acc.ID, Email: "member@acme.test", FirstName: "Max", Role: entity.RoleMember, Active: true}
	require.NoError(t, s.Users.Create(ctx, member))

	email := "billing@sparky.test"
	ent := &entity.Entity{AccountID: acc.ID, TypeCode: "vendor", Name: "Sparky Electric", Email: &email}
	require.NoError(t, s.Entities.Create(ctx, ent))

	return Fixture{Account: acc, Owner: owner, Member: member, Entity: ent}
}
