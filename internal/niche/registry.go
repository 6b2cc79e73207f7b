package niche

import (
	"github.com/joseph-ayodele/compliance-tracker/constants"
)

// Registry is the validated, immutable view of one niche file.
// It is built once by Load and is safe for concurrent reads; callers must not mutate returned slices.
type Registry struct {
	meta             Metadata
	entityTypes      []EntityTypeDef
	requirementTypes []RequirementTypeDef
	documentTypes    []DocumentTypeDef
	templates        []NotificationTemplate

	entityIdx      map[string]int
	requirementIdx map[string]int
	documentIdx    map[string]int
	templateIdx    map[string]int
	rulesByEvent   map[TriggerEvent][]WorkflowRule
	warnings       []string
}

func newRegistry(f *File, warnings []string) *Registry {
	r := &Registry{
		meta:             f.Niche,
		entityTypes:      f.EntityTypes,
		requirementTypes: f.RequirementTypes,
		documentTypes:    f.DocumentTypes,
		templates:        f.NotificationTemplates,
		entityIdx:        make(map[string]int, len(f.EntityTypes)),
		requirementIdx:   make(map[string]int, len(f.RequirementTypes)),
		documentIdx:      make(map[string]int, len(f.DocumentTypes)),
		templateIdx:      make(map[string]int, len(f.NotificationTemplates)),
		rulesByEvent:     make(map[TriggerEvent][]WorkflowRule),
		warnings:         warnings,
	}
	for i, et := range f.EntityTypes {
		r.entityIdx[et.Code] = i
	}
	for i, rt := range f.RequirementTypes {
		r.requirementIdx[rt.Code] = i
	}
	for i, dt := range f.DocumentTypes {
		r.documentIdx[dt.Code] = i
	}
	for i, nt := range f.NotificationTemplates {
		r.templateIdx[nt.Code] = i
	}
	for _, wr := range f.WorkflowRules {
		if wr.IsEnabled() {
			r.rulesByEvent[wr.Trigger.Event] = append(r.rulesByEvent[wr.Trigger.Event], wr)
		}
	}
	return r
}

func (r *Registry) ID() string         { return r.meta.ID }
func (r *Registry) Metadata() Metadata { return r.meta }
func (r *Registry) Warnings() []string { return r.warnings }

func (r *Registry) EntityTypes() []EntityTypeDef           { return r.entityTypes }
func (r *Registry) RequirementTypes() []RequirementTypeDef { return r.requirementTypes }
func (r *Registry) DocumentTypes() []DocumentTypeDef       { return r.documentTypes }
func (r *Registry) Templates() []NotificationTemplate      { return r.templates }

func (r *Registry) EntityType(code string) (EntityTypeDef, bool) {
	i, ok := r.entityIdx[code]
	if !ok {
		return EntityTypeDef{}, false
	}
	return r.entityTypes[i], true
}

func (r *Registry) RequirementType(code string) (RequirementTypeDef, bool) {
	i, ok := r.requirementIdx[code]
	if !ok {
		return RequirementTypeDef{}, false
	}
	return r.requirementTypes[i], true
}

func (r *Registry) DocumentType(code string) (DocumentTypeDef, bool) {
	i, ok := r.documentIdx[code]
	if !ok {
		return DocumentTypeDef{}, false
	}
	return r.documentTypes[i], true
}

func (r *Registry) Template(code string) (NotificationTemplate, bool) {
	i, ok := r.templateIdx[code]
	if !ok {
		return NotificationTemplate{}, false
	}
	return r.templates[i], true
}

// TemplatesFor returns the templates of one notification type, in file order.
func (r *Registry) TemplatesFor(t constants.NotificationType) []NotificationTemplate {
	var out []NotificationTemplate
	for _, nt := range r.templates {
		if nt.NotificationType == t {
			out = append(out, nt)
		}
	}
	return out
}

// RulesFor returns the enabled workflow rules for an event, in file order.
func (r *Registry) RulesFor(event TriggerEvent) []WorkflowRule {
	return r.rulesByEvent[event]
}

// LinkedRequirementType resolves which requirement type a processed document satisfies.
// The document type's requirement_type wins; otherwise the first requirement type that lists
// the document type and applies to the entity type is used.
func (r *Registry) LinkedRequirementType(docType, entityType string) (RequirementTypeDef, bool) {
	dt, ok := r.DocumentType(docType)
	if !ok {
		return RequirementTypeDef{}, false
	}
	if dt.RequirementType != "" {
		return r.RequirementType(dt.RequirementType)
	}
	for _, rt := range r.requirementTypes {
		if rt.RequiresDocument(docType) && rt.AppliesTo(entityType) {
			return rt, true
		}
	}
	return RequirementTypeDef{}, false
}
