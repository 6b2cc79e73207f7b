package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/metrics"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
)

// GenerateStats reports one generation run.
type GenerateStats struct {
	Requirements int
	Created      map[constants.NotificationType]int
	Failed       int
}

// Generator creates the notices due for each requirement. Every notice is keyed by
// (requirement, type, notice date), so reruns on the same day insert nothing new.
type Generator struct {
	store        *repository.Store
	niches       *niche.Store
	requirements *requirement.Service
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewGenerator(store *repository.Store, niches *niche.Store, requirements *requirement.Service, m *metrics.Metrics, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{store: store, niches: niches, requirements: requirements, metrics: m, logger: logger}
}

// Run refreshes requirement statuses and then inserts expiring, overdue and escalation notices.
func (g *Generator) Run(ctx context.Context, today time.Time) (GenerateStats, error) {
	start := time.Now()
	today = requirement.Day(today)
	stats := GenerateStats{Created: map[constants.NotificationType]int{}}

	if _, err := g.requirements.RefreshAll(ctx, today); err != nil {
		return stats, err
	}
	accounts, err := g.store.Accounts.ListActive(ctx)
	if err != nil {
		return stats, err
	}
	for _, acc := range accounts {
		reg, err := g.niches.Lookup(acc.NicheID)
		if err != nil {
			g.logger.Error("notify.generate.niche_error", "account_id", acc.ID, "niche", acc.NicheID, "error", err)
			stats.Failed++
			continue
		}
		accID := acc.ID
		reqs, err := g.store.Requirements.List(ctx, repository.RequirementFilter{AccountID: &accID, HasDueDate: true})
		if err != nil {
			g.logger.Error("notify.generate.list_error", "account_id", acc.ID, "error", err)
			stats.Failed++
			continue
		}
		for _, req := range reqs {
			stats.Requirements++
			if err := g.forRequirement(ctx, reg, req, today, &stats); err != nil {
				g.logger.Error("notify.generate.error", "requirement_id", req.ID, "error", err)
				stats.Failed++
			}
		}
	}
	g.logger.Info("notify.generate.ok",
		"requirements", stats.Requirements,
		"expiring", stats.Created[constants.NotificationExpiring],
		"overdue", stats.Created[constants.NotificationOverdue],
		"escalation", stats.Created[constants.NotificationEscalation],
		"failed", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// Plan is one notice a requirement is due for today.
type Plan struct {
	Type          constants.NotificationType
	NoticeDate    time.Time
	ThresholdDays *int
	Role          string // "" sends to the assignee or first active user
}

// PlanFor lists the notices due for a requirement on today. Manual overrides plan nothing.
func PlanFor(rt niche.RequirementTypeDef, req *entity.Requirement, today time.Time) []Plan {
	if req.ManualOverride || req.DueDate == nil {
		return nil
	}
	due := requirement.Day(*req.DueDate)
	days := requirement.DaysUntil(due, today)
	var plans []Plan

	ladder := rt.Ladder()
	if days >= 0 && len(ladder) > 0 && days <= ladder[len(ladder)-1] {
		for _, t := range ladder {
			if t >= days {
				threshold := t
				plans = append(plans, Plan{
					Type:          constants.NotificationExpiring,
					NoticeDate:    due.AddDate(0, 0, -threshold),
					ThresholdDays: &threshold,
				})
				break
			}
		}
	}
	if days < 0 {
		plans = append(plans, Plan{Type: constants.NotificationOverdue, NoticeDate: due.AddDate(0, 0, 1)})
		if esc := rt.NotificationRules.Escalation; esc != nil && -days >= esc.AfterDays {
			role := esc.NotifyRole
			if role == "" {
				role = entity.RoleOwner
			}
			plans = append(plans, Plan{
				Type:       constants.NotificationEscalation,
				NoticeDate: due.AddDate(0, 0, esc.AfterDays),
				Role:       role,
			})
		}
	}
	return plans
}

func (g *Generator) forRequirement(ctx context.Context, reg *niche.Registry, req *entity.Requirement, today time.Time, stats *GenerateStats) error {
	rt, ok := reg.RequirementType(req.RequirementTypeCode)
	if !ok {
		g.logger.Warn("notify.generate.unknown_type", "requirement_id", req.ID, "type", req.RequirementTypeCode)
		return nil
	}
	for _, p := range PlanFor(rt, req, today) {
		recipient, err := g.requirements.Recipient(ctx, req, p.Role)
		if err != nil {
			return err
		}
		n := &entity.Notification{
			AccountID:     req.AccountID,
			RequirementID: req.ID,
			RecipientID:   recipient,
			Type:          p.Type,
			NoticeDate:    p.NoticeDate,
			ThresholdDays: p.ThresholdDays,
			Channel:       "email",
			ScheduledAt:   today,
			Context: map[string]any{
				"days_until_due": requirement.DaysUntil(*req.DueDate, today),
				"generated_on":   today.Format(niche.DateLayout),
			},
		}
		inserted, err := g.store.Notifications.InsertIfAbsent(ctx, n)
		if err != nil {
			return err
		}
		if inserted {
			stats.Created[p.Type]++
			g.metrics.NotificationGenerated(string(p.Type))
			g.logger.Debug("notify.generate.created", "requirement_id", req.ID, "type", p.Type, "notice_date", p.NoticeDate.Format(niche.DateLayout))
		}
	}
	return nil
}
