// Package scheduler runs the periodic compliance jobs on cron specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/joblock"
	"github.com/joseph-ayodele/compliance-tracker/internal/metrics"
)

const DefaultLockTTL = 30 * time.Minute

// Job is one named unit of periodic work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Result of one attempt to run a job.
type Result string

const (
	ResultRan     Result = "ran"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

type Option func(*Scheduler)

func WithLockTTL(ttl time.Duration) Option {
	return func(s *Scheduler) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// WithLocation sets the zone cron specs are read in. The default is UTC.
func WithLocation(loc *time.Location) Option { return func(s *Scheduler) { s.loc = loc } }

// Scheduler runs registered jobs. A job never overlaps itself: a tick that finds the
// previous run still going, here or in another process holding the lock, is skipped.
type Scheduler struct {
	locker  joblock.Locker
	lockTTL time.Duration
	loc     *time.Location
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	jobs    map[string]Job
	running map[string]bool
	cron    *cron.Cron
	ctx     context.Context
}

func New(locker joblock.Locker, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = joblock.NewMemory()
	}
	s := &Scheduler{
		locker:  locker,
		lockTTL: DefaultLockTTL,
		loc:     time.UTC,
		logger:  logger,
		jobs:    map[string]Job{},
		running: map[string]bool{},
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. An empty spec registers a job that only runs through RunNow.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return common.InvalidInputf("job needs a name and a run func")
	}
	if job.Spec != "" {
		if _, err := cron.ParseStandard(job.Spec); err != nil {
			return common.InvalidInputf("job %s: invalid cron spec %q: %v", job.Name, job.Spec, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return common.Conflictf("job %s already registered", job.Name)
	}
	s.jobs[job.Name] = job
	return nil
}

// Jobs lists registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Start schedules every job with a spec. Runs stop at ctx cancellation or Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return common.Conflictf("scheduler already started")
	}
	c := cron.New(cron.WithLocation(s.loc))
	for _, job := range s.jobs {
		if job.Spec == "" {
			continue
		}
		name := job.Name
		if _, err := c.AddFunc(job.Spec, func() { _, _ = s.RunNow(s.ctx, name) }); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		s.logger.Info("scheduler.job.registered", "job", name, "spec", job.Spec)
	}
	s.ctx = ctx
	s.cron = c
	c.Start()
	s.logger.Info("scheduler.started", "jobs", len(c.Entries()))
	return nil
}

// Stop halts new ticks and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.logger.Info("scheduler.stopping")
	return c.Stop()
}

// RunNow runs a job immediately unless it is already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) (Result, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return "", common.NotFoundf("job %s", name)
	}
	if s.running[name] {
		s.mu.Unlock()
		s.skip(name, "running")
		return ResultSkipped, nil
	}
	s.running[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	lease, acquired, err := s.locker.TryAcquire(ctx, name, s.lockTTL)
	if err != nil {
		s.logger.Error("scheduler.job.lock_error", "job", name, "error", err)
		s.metrics.JobRun(name, string(ResultFailed))
		return ResultFailed, err
	}
	if !acquired {
		s.skip(name, "locked")
		return ResultSkipped, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("scheduler.job.unlock_error", "job", name, "error", err)
		}
	}()

	start := time.Now()
	s.logger.Info("scheduler.job.start", "job", name)
	if err := s.call(ctx, job); err != nil {
		s.logger.Error("scheduler.job.failed", "job", name, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		s.metrics.JobRun(name, string(ResultFailed))
		return ResultFailed, err
	}
	s.logger.Info("scheduler.job.done", "job", name, "elapsed_ms", time.Since(start).Milliseconds())
	s.metrics.JobRun(name, string(ResultRan))
	return ResultRan, nil
}

func (s *Scheduler) skip(name, reason string) {
	s.logger.Info("scheduler.job.skipped", "job", name, "reason", reason)
	s.metrics.JobRun(name, string(ResultSkipped))
}

// call runs the job, turning a panic into an error so one bad run cannot stop the cron.
func (s *Scheduler) call(ctx context.Context, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Join(common.ErrInternal, fmt.Errorf("job %s panicked: %v", job.Name, p))
		}
	}()
	return job.Run(ctx)
}
