package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
)

// DefaultDueDateField is the extracted field mapped onto the requirement due date.
const DefaultDueDateField = "expiration_date"

// defaultProcessedRule applies when a niche has no enabled document.processed rule.
var defaultProcessedRule = niche.WorkflowRule{
	Code: "default_document_processed",
	Name: "Link document and map expiration date",
	Actions: []niche.Action{
		{Type: niche.ActionLinkDocument},
		{Type: niche.ActionUpdateRequirement, Params: map[string]any{"due_date_field": DefaultDueDateField}},
		{Type: niche.ActionUpdateStatus},
	},
}

// Result summarises one Fire call.
type Result struct {
	RulesMatched int
	ActionsRun   int
}

type Engine struct {
	store        *repository.Store
	requirements *requirement.Service
	niches       *niche.Store
	logger       *slog.Logger
}

func NewEngine(store *repository.Store, requirements *requirement.Service, niches *niche.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, requirements: requirements, niches: niches, logger: logger}
}

// Fire evaluates the enabled rules for event against subj and runs the actions of each
// matching rule in order. The first failing action stops the run and returns its error.
func (e *Engine) Fire(ctx context.Context, event niche.TriggerEvent, subj *Subject) (Result, error) {
	var res Result
	if subj.Registry == nil {
		return res, fmt.Errorf("workflow: subject has no niche registry")
	}
	rules := subj.Registry.RulesFor(event)
	if len(rules) == 0 && event == niche.EventDocumentProcessed {
		rules = []niche.WorkflowRule{defaultProcessedRule}
	}
	if len(rules) == 0 {
		return res, nil
	}

	start := time.Now()
	for _, rule := range rules {
		if !Matches(rule.Trigger.Conditions, subj.Data()) {
			continue
		}
		res.RulesMatched++
		for _, action := range rule.Actions {
			if err := e.run(ctx, action, subj); err != nil {
				e.logger.Error("workflow.action.error",
					"event", event, "rule", rule.Code, "action", action.Type, "error", err)
				return res, fmt.Errorf("workflow rule %s action %s: %w", rule.Code, action.Type, err)
			}
			res.ActionsRun++
		}
	}
	e.logger.Debug("workflow.fire.ok",
		"event", event, "rules_matched", res.RulesMatched, "actions", res.ActionsRun,
		"elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

// RequirementTransitioned fires requirement.expiring and requirement.expired rules.
func (e *Engine) RequirementTransitioned(ctx context.Context, req *entity.Requirement, event niche.TriggerEvent) error {
	acc, err := e.store.Accounts.Get(ctx, req.AccountID)
	if err != nil {
		return err
	}
	reg, err := e.niches.Lookup(acc.NicheID)
	if err != nil {
		return err
	}
	ent, err := e.store.Entities.Get(ctx, req.EntityID)
	if err != nil {
		return err
	}
	_, err = e.Fire(ctx, event, &Subject{Registry: reg, Account: acc, Entity: ent, Requirement: req})
	return err
}
