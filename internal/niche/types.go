package niche

import (
	"sort"
	"strings"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

// Defaults applied when a niche file leaves a knob unset.
const (
	DefaultConfidenceThreshold = 0.8
	DefaultExpiringSoonDays    = 30
	DefaultPriority            = "medium"
)

// DefaultDaysBefore is the reminder ladder used when a requirement type configures none.
var DefaultDaysBefore = []int{30, 14, 7, 1}

// FieldType is the closed set of extraction field types.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
)

var fieldTypes = map[FieldType]bool{
	FieldString: true, FieldText: true, FieldNumber: true,
	FieldDate: true, FieldBoolean: true, FieldArray: true,
}

// Valid reports whether t is a recognised extraction field type.
func (t FieldType) Valid() bool { return fieldTypes[t] }

// TriggerEvent names the domain events workflow rules can react to.
type TriggerEvent string

const (
	EventDocumentUploaded    TriggerEvent = "document.uploaded"
	EventDocumentProcessed   TriggerEvent = "document.processed"
	EventRequirementCreated  TriggerEvent = "requirement.created"
	EventRequirementExpiring TriggerEvent = "requirement.expiring"
	EventRequirementExpired  TriggerEvent = "requirement.expired"
	EventEntityCreated       TriggerEvent = "entity.created"
	EventEntityUpdated       TriggerEvent = "entity.updated"
)

var triggerEvents = map[TriggerEvent]bool{
	EventDocumentUploaded: true, EventDocumentProcessed: true,
	EventRequirementCreated: true, EventRequirementExpiring: true, EventRequirementExpired: true,
	EventEntityCreated: true, EventEntityUpdated: true,
}

func (e TriggerEvent) Valid() bool { return triggerEvents[e] }

// Operator compares a subject field against a condition value.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
)

var operators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpGreaterThan: true, OpLessThan: true,
	OpGreaterThanOrEqual: true, OpLessThanOrEqual: true, OpContains: true,
	OpNotContains: true, OpIn: true, OpNotIn: true,
}

func (o Operator) Valid() bool { return operators[o] }

// ActionType is the closed set of workflow actions.
type ActionType string

const (
	ActionCreateRequirement ActionType = "create_requirement"
	ActionUpdateRequirement ActionType = "update_requirement"
	ActionSendNotification  ActionType = "send_notification"
	ActionLinkDocument      ActionType = "link_document"
	ActionUpdateStatus      ActionType = "update_status"
	ActionAssignUser        ActionType = "assign_user"
)

var actionTypes = map[ActionType]bool{
	ActionCreateRequirement: true, ActionUpdateRequirement: true, ActionSendNotification: true,
	ActionLinkDocument: true, ActionUpdateStatus: true, ActionAssignUser: true,
}

func (a ActionType) Valid() bool { return actionTypes[a] }

// RuleKind is the closed set of document validation rules.
type RuleKind string

const (
	RuleDateAfter     RuleKind = "date_after"
	RuleDateBefore    RuleKind = "date_before"
	RuleDateNotPast   RuleKind = "date_not_past"
	RuleDateNotFuture RuleKind = "date_not_future"
	RuleMinValue      RuleKind = "min_value"
	RuleMaxValue      RuleKind = "max_value"
	RuleMinLength     RuleKind = "min_length"
	RuleMaxLength     RuleKind = "max_length"
	RulePattern       RuleKind = "pattern"
	RuleOneOf         RuleKind = "one_of"
	RuleRequiredIf    RuleKind = "required_if"
)

var ruleKinds = map[RuleKind]bool{
	RuleDateAfter: true, RuleDateBefore: true, RuleDateNotPast: true, RuleDateNotFuture: true,
	RuleMinValue: true, RuleMaxValue: true, RuleMinLength: true, RuleMaxLength: true,
	RulePattern: true, RuleOneOf: true, RuleRequiredIf: true,
}

func (r RuleKind) Valid() bool { return ruleKinds[r] }

var (
	customFieldTypes = map[string]bool{
		"string": true, "text": true, "number": true, "currency": true, "date": true, "boolean": true,
		"email": true, "phone": true, "url": true, "select": true, "multi-select": true, "address": true,
	}
	frequencies = map[string]bool{
		"once": true, "daily": true, "weekly": true, "monthly": true, "quarterly": true, "annually": true,
	}
	priorities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
	channels   = map[string]bool{"email": true, "in_app": true, "sms": true, "webhook": true}
)

var noticeTypes = map[constants.NotificationType]bool{
	constants.NotificationReminder: true, constants.NotificationExpiring: true,
	constants.NotificationOverdue: true, constants.NotificationEscalation: true,
	constants.NotificationStatusChange: true, constants.NotificationDocumentProcessed: true,
}

// Metadata identifies a niche.
type Metadata struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

// CustomField is an entity or requirement custom field definition.
type CustomField struct {
	Name     string   `yaml:"name" validate:"required"`
	Label    string   `yaml:"label"`
	Type     string   `yaml:"type" validate:"required"`
	Required bool     `yaml:"required"`
	Options  []string `yaml:"options"`
}

type EntityTypeDef struct {
	Code        string        `yaml:"code" validate:"required"`
	Name        string        `yaml:"name" validate:"required"`
	Description string        `yaml:"description"`
	Icon        string        `yaml:"icon"`
	Fields      []CustomField `yaml:"fields" validate:"dive"`
}

// Escalation configures the escalation notice. A nil escalation disables it.
type Escalation struct {
	AfterDays  int    `yaml:"after_days"`
	NotifyRole string `yaml:"notify_role"`
}

type NotificationRules struct {
	DaysBefore []int       `yaml:"days_before"`
	Escalation *Escalation `yaml:"escalation"`
}

type RequirementTypeDef struct {
	Code                  string            `yaml:"code" validate:"required"`
	Name                  string            `yaml:"name" validate:"required"`
	Description           string            `yaml:"description"`
	Frequency             string            `yaml:"frequency"`
	DefaultPriority       string            `yaml:"default_priority"`
	ApplicableEntityTypes []string          `yaml:"applicable_entity_types"`
	RequiredDocumentTypes []string          `yaml:"required_document_types"`
	ExpiringSoonDays      *int              `yaml:"expiring_soon_days"`
	NotificationRules     NotificationRules `yaml:"notification_rules"`
	Fields                []CustomField     `yaml:"fields" validate:"dive"`
}

// WindowDays is N in the expiring_soon window.
func (r RequirementTypeDef) WindowDays() int {
	if r.ExpiringSoonDays != nil {
		return *r.ExpiringSoonDays
	}
	return DefaultExpiringSoonDays
}

// Ladder returns the reminder thresholds sorted ascending.
func (r RequirementTypeDef) Ladder() []int {
	src := r.NotificationRules.DaysBefore
	if len(src) == 0 {
		src = DefaultDaysBefore
	}
	out := append([]int(nil), src...)
	sort.Ints(out)
	return out
}

func (r RequirementTypeDef) Priority() string {
	if r.DefaultPriority == "" {
		return DefaultPriority
	}
	return r.DefaultPriority
}

// AppliesTo reports whether the requirement type applies to an entity type. An empty list applies to all.
func (r RequirementTypeDef) AppliesTo(entityType string) bool {
	if len(r.ApplicableEntityTypes) == 0 {
		return true
	}
	for _, c := range r.ApplicableEntityTypes {
		if c == entityType {
			return true
		}
	}
	return false
}

func (r RequirementTypeDef) RequiresDocument(docType string) bool {
	for _, c := range r.RequiredDocumentTypes {
		if c == docType {
			return true
		}
	}
	return false
}

type ExtractionField struct {
	Name     string    `yaml:"name" validate:"required"`
	Label    string    `yaml:"label"`
	Type     FieldType `yaml:"type" validate:"required"`
	Required bool      `yaml:"required"`
}

// ExtractionSchema is the ordered list of fields a document type extracts.
type ExtractionSchema struct {
	Fields []ExtractionField `yaml:"fields" validate:"dive"`
}

func (s ExtractionSchema) Field(name string) (ExtractionField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ExtractionField{}, false
}

// ValidationRule checks an extracted field after extraction.
type ValidationRule struct {
	Field   string   `yaml:"field" validate:"required"`
	Rule    RuleKind `yaml:"rule" validate:"required"`
	Value   any      `yaml:"value"`
	Message string   `yaml:"message"`
}

type DocumentTypeDef struct {
	Code                string           `yaml:"code" validate:"required"`
	Name                string           `yaml:"name" validate:"required"`
	Description         string           `yaml:"description"`
	AcceptedMimeTypes   []string         `yaml:"accepted_mime_types"`
	ExtractionPrompt    string           `yaml:"extraction_prompt"`
	ExtractionSchema    ExtractionSchema `yaml:"extraction_schema"`
	ValidationRules     []ValidationRule `yaml:"validation_rules" validate:"dive"`
	ConfidenceThreshold *float64         `yaml:"confidence_threshold"`
	RequirementType     string           `yaml:"requirement_type"`
}

// Threshold is the minimum overall confidence for status=processed.
func (d DocumentTypeDef) Threshold() float64 {
	if d.ConfidenceThreshold != nil {
		return *d.ConfidenceThreshold
	}
	return DefaultConfidenceThreshold
}

func (d DocumentTypeDef) Accepts(mime string) bool {
	accepted := d.AcceptedMimeTypes
	if len(accepted) == 0 {
		accepted = constants.DefaultAcceptedMimeTypes
	}
	mime = constants.NormalizeMime(mime)
	for _, m := range accepted {
		if strings.EqualFold(m, mime) {
			return true
		}
	}
	return false
}

type Condition struct {
	Field    string   `yaml:"field" validate:"required"`
	Operator Operator `yaml:"operator" validate:"required"`
	Value    any      `yaml:"value"`
}

type Action struct {
	Type   ActionType     `yaml:"type" validate:"required"`
	Params map[string]any `yaml:"params"`
}

// Param returns a string parameter or def when unset.
func (a Action) Param(key, def string) string {
	if v, ok := a.Params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

type Trigger struct {
	Event      TriggerEvent `yaml:"event" validate:"required"`
	Conditions []Condition  `yaml:"conditions" validate:"dive"`
}

type WorkflowRule struct {
	Code        string   `yaml:"code" validate:"required"`
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description"`
	Enabled     *bool    `yaml:"enabled"`
	Trigger     Trigger  `yaml:"trigger"`
	Actions     []Action `yaml:"actions" validate:"dive"`
}

func (w WorkflowRule) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

type NotificationTemplate struct {
	Code             string                     `yaml:"code" validate:"required"`
	Name             string                     `yaml:"name" validate:"required"`
	NotificationType constants.NotificationType `yaml:"notification_type" validate:"required"`
	Channel          string                     `yaml:"channel"`
	Subject          string                     `yaml:"subject" validate:"required"`
	Body             string                     `yaml:"body" validate:"required"`
	DaysBefore       *int                       `yaml:"days_before"`
}

// File is the decoded shape of one niche YAML file.
type File struct {
	Niche                 Metadata               `yaml:"niche"`
	EntityTypes           []EntityTypeDef        `yaml:"entity_types" validate:"dive"`
	RequirementTypes      []RequirementTypeDef   `yaml:"requirement_types" validate:"dive"`
	DocumentTypes         []DocumentTypeDef      `yaml:"document_types" validate:"dive"`
	WorkflowRules         []WorkflowRule         `yaml:"workflow_rules" validate:"dive"`
	NotificationTemplates []NotificationTemplate `yaml:"notification_templates" validate:"dive"`
}
