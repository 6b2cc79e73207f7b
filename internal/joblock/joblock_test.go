package joblock

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestRedis_ExclusiveUntilReleased(t *testing.T) {
	locker, mr := newRedis(t)
	ctx := context.Background()

	lease, ok, err := locker.TryAcquire(ctx, "generate_notifications", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(keyPrefix+"generate_notifications"))

	_, ok, err = locker.TryAcquire(ctx, "generate_notifications", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = locker.TryAcquire(ctx, "dispatch_notifications", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per name")

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists(keyPrefix+"generate_notifications"))

	_, ok, err = locker.TryAcquire(ctx, "generate_notifications", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ExpiredLeaseDoesNotDeleteNewHolder(t *testing.T) {
	locker, mr := newRedis(t)
	ctx := context.Background()

	stale, ok, err := locker.TryAcquire(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryAcquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists(keyPrefix+"job"), "stale release must keep the new holder's key")
}

func TestRedis_ServerDown(t *testing.T) {
	locker, mr := newRedis(t)
	mr.Close()
	_, ok, err := locker.TryAcquire(context.Background(), "job", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	first, ok, err := m.TryAcquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = m.TryAcquire(ctx, "job", time.Minute)
	assert.False(t, ok)

	clock = clock.Add(2 * time.Minute)
	second, ok, _ := m.TryAcquire(ctx, "job", time.Minute)
	require.True(t, ok, "expired lease can be taken")

	require.NoError(t, first.Release(ctx))
	_, ok, _ = m.TryAcquire(ctx, "job", time.Minute)
	assert.False(t, ok, "stale release keeps the current holder")

	require.NoError(t, second.Release(ctx))
	_, ok, _ = m.TryAcquire(ctx, "job", time.Minute)
	assert.True(t, ok)
}
