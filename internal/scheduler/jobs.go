package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/notify"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
)

const (
	JobGenerateNotifications = "generate_notifications"
	JobDispatchNotifications = "dispatch_notifications"
	JobRefreshRequirements   = "refresh_requirements"
	JobCRMCompliancePush     = "crm_compliance_push"
)

type Generator interface {
	Run(ctx context.Context, today time.Time) (notify.GenerateStats, error)
}

type Dispatcher interface {
	Run(ctx context.Context) (notify.DispatchStats, error)
}

type Refresher interface {
	RefreshAll(ctx context.Context, today time.Time) (requirement.RefreshStats, error)
}

// CompliancePusher sends the aggregate compliance status of every linked entity to the CRM.
type CompliancePusher interface {
	PushAllCompliance(ctx context.Context) (int, error)
}

// Deps are the services behind the standard jobs. A nil dependency leaves its job out.
type Deps struct {
	Generator  Generator
	Dispatcher Dispatcher
	Refresher  Refresher
	CRM        CompliancePusher
	Now        func() time.Time
	Logger     *slog.Logger
}

// StandardJobs builds the four periodic jobs from cfg specs.
func StandardJobs(cfg common.SchedulerConfig, d Deps) []Job {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var jobs []Job
	if d.Generator != nil {
		jobs = append(jobs, Job{Name: JobGenerateNotifications, Spec: cfg.GenerateSpec, Run: func(ctx context.Context) error {
			_, err := d.Generator.Run(ctx, now().UTC())
			return err
		}})
	}
	if d.Dispatcher != nil {
		jobs = append(jobs, Job{Name: JobDispatchNotifications, Spec: cfg.DispatchSpec, Run: func(ctx context.Context) error {
			_, err := d.Dispatcher.Run(ctx)
			return err
		}})
	}
	if d.Refresher != nil {
		jobs = append(jobs, Job{Name: JobRefreshRequirements, Spec: cfg.RefreshSpec, Run: func(ctx context.Context) error {
			stats, err := d.Refresher.RefreshAll(ctx, requirement.Day(now()))
			if err == nil {
				logger.Info("scheduler.refresh.ok", "checked", stats.Checked, "changed", stats.Changed, "failed", stats.Failed)
			}
			return err
		}})
	}
	if d.CRM != nil {
		jobs = append(jobs, Job{Name: JobCRMCompliancePush, Spec: cfg.CRMPushSpec, Run: func(ctx context.Context) error {
			n, err := d.CRM.PushAllCompliance(ctx)
			if err == nil {
				logger.Info("scheduler.crm_push.ok", "entities", n)
			}
			return err
		}})
	}
	return jobs
}

// RegisterAll registers jobs, stopping at the first error.
func (s *Scheduler) RegisterAll(jobs []Job) error {
	for _, j := range jobs {
		if err := s.Register(j); err != nil {
			return err
		}
	}
	return nil
}
