package joblock

import (
	"context"
	"sync"
	"time"
)

// Memory implements Locker for a single process.
type Memory struct {
	mu    sync.Mutex
	held  map[string]memoryHold
	now   func() time.Time
	token uint64
}

type memoryHold struct {
	token   uint64
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{held: map[string]memoryHold{}, now: time.Now}
}

func (m *Memory) TryAcquire(_ context.Context, name string, ttl time.Duration) (Lease, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if h, ok := m.held[name]; ok && now.Before(h.expires) {
		return nil, false, nil
	}
	m.token++
	m.held[name] = memoryHold{token: m.token, expires: now.Add(ttl)}
	return &memoryLease{m: m, name: name, token: m.token}, true, nil
}

type memoryLease struct {
	m     *Memory
	name  string
	token uint64
}

func (l *memoryLease) Release(context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if h, ok := l.m.held[l.name]; ok && h.token == l.token {
		delete(l.m.held, l.name)
	}
	return nil
}
