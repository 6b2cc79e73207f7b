// Package joblock keeps a scheduled job from running twice at once, across processes when
// backed by Redis.
package joblock

import (
	"context"
	"time"
)

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out named leases that expire after ttl if never released.
type Locker interface {
	// TryAcquire returns ok=false without error when another holder has the lock.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lease, bool, error)
}
