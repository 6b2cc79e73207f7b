package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPusher struct {
	mu     sync.Mutex
	pushed []uuid.UUID
	gate   chan struct{}
	err    error
}

func (p *recordingPusher) PushEntity(_ context.Context, id uuid.UUID) error {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, id)
	return p.err
}

func (p *recordingPusher) ids() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.pushed...)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPushQueue_DrainsOnShutdown(t *testing.T) {
	p := &recordingPusher{err: errors.New("crm down")}
	q := NewPushQueue(p, quiet(), WithWorkers(3))

	want := make([]uuid.UUID, 10)
	for i := range want {
		want[i] = uuid.New()
		require.NoError(t, q.Enqueue(context.Background(), Job{EntityID: want[i]}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.ElementsMatch(t, want, p.ids(), "failed pushes are attempted once and dropped")
	assert.NoError(t, q.Enqueue(context.Background(), Job{EntityID: uuid.New()}), "enqueue after shutdown is a no-op")
	assert.Len(t, p.ids(), 10)
	q.Shutdown(ctx)
}

func TestPushQueue_FullQueueHonoursContext(t *testing.T) {
	p := &recordingPusher{gate: make(chan struct{})}
	q := NewPushQueue(p, quiet(), WithWorkers(1), WithQueueSize(1))

	// The worker blocks on the first job, the second fills the buffer.
	require.NoError(t, q.Enqueue(context.Background(), Job{EntityID: uuid.New()}))
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{EntityID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{EntityID: uuid.New()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(p.gate)
	q.Shutdown(context.Background())
	assert.Len(t, p.ids(), 2)
}
