package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
)

// PushQueue runs CRM pushes off the request path. Failures are logged and dropped;
// the sync log row written by the pusher is the record of the attempt.
type PushQueue struct {
	pusher  Pusher
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*PushQueue)

func WithWorkers(n int) Option {
	return func(q *PushQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *PushQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithPushTimeout(d time.Duration) Option {
	return func(q *PushQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewPushQueue(pusher Pusher, logger *slog.Logger, opts ...Option) *PushQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &PushQueue{
		pusher:  pusher,
		logger:  logger,
		workers: 2,
		timeout: 30 * time.Second,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *PushQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("crm.queue.worker_started", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Debug("crm.queue.worker_stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *PushQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			q.logger.Error("crm.queue.panic", "worker_id", workerID, "entity_id", job.EntityID, "panic", p)
		}
	}()
	if err := q.pusher.PushEntity(ctx, job.EntityID); err != nil {
		q.logger.Error("crm.queue.push_failed", "worker_id", workerID, "entity_id", job.EntityID, "trigger", job.Trigger, "error", err)
		return
	}
	q.logger.Debug("crm.queue.pushed", "worker_id", workerID, "entity_id", job.EntityID, "trigger", job.Trigger,
		"queued_ms", time.Since(job.SubmittedAt).Milliseconds())
}

// Enqueue blocks while the queue is full until ctx is done. Jobs offered after
// Shutdown are dropped.
func (q *PushQueue) Enqueue(ctx context.Context, job Job) error {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("crm.queue.closed", "entity_id", job.EntityID)
		return nil
	}
	select {
	case q.ch <- job:
		return nil
	default:
	}
	q.logger.Warn("crm.queue.full", "entity_id", job.EntityID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return common.NewAppError("QUEUE_FULL", "crm push queue is full", ctx.Err())
	}
}

// Shutdown stops intake and waits for queued pushes until ctx is done.
func (q *PushQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("crm.queue.shutdown_interrupted")
	case <-done:
		q.logger.Info("crm.queue.drained")
	}
}
