package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

func (e *Engine) run(ctx context.Context, a niche.Action, subj *Subject) error {
	switch a.Type {
	case niche.ActionLinkDocument:
		_, err := e.Link(ctx, subj)
		return err
	case niche.ActionCreateRequirement:
		return e.createRequirement(ctx, a, subj)
	case niche.ActionUpdateRequirement:
		return e.updateRequirement(ctx, a, subj)
	case niche.ActionUpdateStatus:
		return e.updateStatus(ctx, subj)
	case niche.ActionSendNotification:
		return e.sendNotification(ctx, a, subj)
	case niche.ActionAssignUser:
		return e.assignUser(ctx, a, subj)
	}
	return fmt.Errorf("unknown action type %q", a.Type)
}

// Link attaches the subject document to the requirement it satisfies, creating the
// requirement when the entity has none of that type yet. It returns the linked
// requirement, or nil when the document has no entity or no requirement type applies.
func (e *Engine) Link(ctx context.Context, subj *Subject) (*entity.Requirement, error) {
	doc, ent := subj.Document, subj.Entity
	if doc == nil || ent == nil {
		return nil, nil
	}
	rt, ok := subj.Registry.LinkedRequirementType(doc.DocumentTypeCode, ent.TypeCode)
	if !ok {
		e.logger.Info("workflow.link.no_requirement_type",
			"document_id", doc.ID, "document_type", doc.DocumentTypeCode, "entity_type", ent.TypeCode)
		return nil, nil
	}
	req, err := e.ensureRequirement(ctx, subj, rt)
	if err != nil {
		return nil, err
	}
	if req.DocumentID == nil || *req.DocumentID != doc.ID {
		id := doc.ID
		req.DocumentID = &id
		if err := e.store.Requirements.Save(ctx, req); err != nil {
			return nil, err
		}
		e.logger.Info("workflow.link.ok", "document_id", doc.ID, "requirement_id", req.ID)
	}
	subj.Requirement = req
	return req, nil
}

// ensureRequirement resolves the (entity, requirement type) row and fires
// requirement.created exactly once, when this call created it.
func (e *Engine) ensureRequirement(ctx context.Context, subj *Subject, rt niche.RequirementTypeDef) (*entity.Requirement, error) {
	ent := subj.Entity
	req, err := e.store.Requirements.GetByKey(ctx, ent.ID, rt.Code)
	if err == nil {
		return req, nil
	}
	if !common.IsNotFound(err) {
		return nil, err
	}
	req = &entity.Requirement{
		AccountID:           ent.AccountID,
		EntityID:            ent.ID,
		RequirementTypeCode: rt.Code,
		Name:                rt.Name,
		Status:              constants.RequirementPending,
		Priority:            rt.Priority(),
	}
	created, err := e.store.Requirements.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if created {
		e.logger.Info("workflow.requirement.created", "requirement_id", req.ID, "entity_id", ent.ID, "type", rt.Code)
		child := &Subject{Registry: subj.Registry, Account: subj.Account, Entity: ent, Document: subj.Document, Requirement: req}
		if _, err := e.Fire(ctx, niche.EventRequirementCreated, child); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (e *Engine) createRequirement(ctx context.Context, a niche.Action, subj *Subject) error {
	if subj.Entity == nil {
		return nil
	}
	code := a.Param("requirement_type", "")
	rt, ok := subj.Registry.RequirementType(code)
	if !ok {
		return fmt.Errorf("unknown requirement type %q", code)
	}
	if !rt.AppliesTo(subj.Entity.TypeCode) {
		return nil
	}
	req, err := e.ensureRequirement(ctx, subj, rt)
	if err != nil {
		return err
	}
	if subj.Requirement == nil {
		subj.Requirement = req
	}
	return nil
}

// updateRequirement maps a date field of the document onto the due date, or sets the priority.
func (e *Engine) updateRequirement(ctx context.Context, a niche.Action, subj *Subject) error {
	req := subj.Requirement
	if req == nil {
		return nil
	}
	if p := a.Param("priority", ""); p != "" {
		req.Priority = p
		if err := e.store.Requirements.Save(ctx, req); err != nil {
			return err
		}
		if _, ok := a.Params["due_date_field"]; !ok {
			return nil
		}
	}
	if subj.Document == nil {
		return nil
	}
	field := a.Param("due_date_field", DefaultDueDateField)
	raw, ok := subj.Document.ExtractedData[field].(string)
	if !ok || raw == "" {
		return nil
	}
	due, err := niche.ParseDate(raw)
	if err != nil {
		e.logger.Warn("workflow.due_date.unparseable", "requirement_id", req.ID, "field", field, "value", raw)
		return nil
	}
	updated, err := e.requirements.SetDueDate(ctx, req.ID, &due)
	if err != nil {
		return err
	}
	subj.Requirement = updated
	return nil
}

func (e *Engine) updateStatus(ctx context.Context, subj *Subject) error {
	if subj.Requirement == nil {
		return nil
	}
	req, err := e.requirements.Refresh(ctx, subj.Requirement.ID, e.requirements.Today())
	if err != nil {
		return err
	}
	subj.Requirement = req
	return nil
}

// sendNotification queues a pending notice keyed by today.
func (e *Engine) sendNotification(ctx context.Context, a niche.Action, subj *Subject) error {
	req := subj.Requirement
	if req == nil {
		return nil
	}
	noticeType := constants.NotificationType(a.Param("notification_type", string(constants.NotificationStatusChange)))
	recipient, err := e.requirements.Recipient(ctx, req, "")
	if err != nil {
		return err
	}
	n := &entity.Notification{
		AccountID:     req.AccountID,
		RequirementID: req.ID,
		RecipientID:   recipient,
		Type:          noticeType,
		NoticeDate:    e.requirements.Today(),
		Channel:       "email",
		ScheduledAt:   time.Now().UTC(),
		Context:       map[string]any{"source": "workflow"},
	}
	if tmpl := a.Param("template", ""); tmpl != "" {
		n.TemplateCode = &tmpl
		if t, ok := subj.Registry.Template(tmpl); ok && t.Channel != "" {
			n.Channel = t.Channel
		}
	}
	if subj.Document != nil {
		n.Context["document_id"] = subj.Document.ID.String()
	}
	inserted, err := e.store.Notifications.InsertIfAbsent(ctx, n)
	if err != nil {
		return err
	}
	e.logger.Info("workflow.notification.queued", "requirement_id", req.ID, "type", noticeType, "inserted", inserted)
	return nil
}

func (e *Engine) assignUser(ctx context.Context, a niche.Action, subj *Subject) error {
	req := subj.Requirement
	if req == nil {
		return nil
	}
	email := a.Param("email", "")
	if email == "" {
		return fmt.Errorf("assign_user needs an email")
	}
	u, err := e.store.Users.GetByEmail(ctx, req.AccountID, email)
	if common.IsNotFound(err) {
		e.logger.Warn("workflow.assign.unknown_user", "requirement_id", req.ID, "email", email)
		return nil
	}
	if err != nil {
		return err
	}
	req.AssigneeID = &u.ID
	return e.store.Requirements.Save(ctx, req)
}
