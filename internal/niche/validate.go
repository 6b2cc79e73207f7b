package niche

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/go-playground/validator/v10"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checker accumulates violations and warnings while walking a decoded file.
type checker struct {
	errs     []string
	warnings []string
}

func (c *checker) errorf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Sprintf(format, args...))
}

func (c *checker) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// validateFile runs the structural pass then every cross-reference and enum check.
func validateFile(f *File) (violations, warnings []string) {
	c := &checker{}

	if err := structValidator.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				ns := fe.Namespace()
				if i := strings.IndexByte(ns, '.'); i >= 0 {
					ns = ns[i+1:]
				}
				c.errorf("%s: failed %q check", ns, fe.Tag())
			}
		} else {
			c.errorf("structural validation: %v", err)
		}
	}

	entityCodes := c.checkEntityTypes(f.EntityTypes)
	docCodes := codeSet(f.DocumentTypes, func(d DocumentTypeDef) string { return d.Code })
	reqCodes := c.checkRequirementTypes(f.RequirementTypes, entityCodes, docCodes)
	c.checkDocumentTypes(f.DocumentTypes, reqCodes)
	c.checkWorkflowRules(f.WorkflowRules, reqCodes)
	c.checkTemplates(f.NotificationTemplates)

	return c.errs, c.warnings
}

func codeSet[T any](items []T, code func(T) string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[code(it)] = true
	}
	return out
}

func (c *checker) checkEntityTypes(types []EntityTypeDef) map[string]bool {
	seen := map[string]bool{}
	for _, et := range types {
		if seen[et.Code] {
			c.errorf("duplicate entity type code: %s", et.Code)
		}
		seen[et.Code] = true
		for _, fd := range et.Fields {
			if !customFieldTypes[fd.Type] {
				c.errorf("entity type '%s' field '%s' has invalid type '%s'", et.Code, fd.Name, fd.Type)
			}
			if (fd.Type == "select" || fd.Type == "multi-select") && len(fd.Options) == 0 {
				c.warnf("entity type '%s' field '%s' is a %s but has no options defined", et.Code, fd.Name, fd.Type)
			}
		}
	}
	return seen
}

func (c *checker) checkRequirementTypes(types []RequirementTypeDef, entityCodes, docCodes map[string]bool) map[string]bool {
	seen := map[string]bool{}
	for _, rt := range types {
		if seen[rt.Code] {
			c.errorf("duplicate requirement type code: %s", rt.Code)
		}
		seen[rt.Code] = true
		if rt.Frequency != "" && !frequencies[rt.Frequency] {
			c.errorf("requirement type '%s' has invalid frequency: '%s'", rt.Code, rt.Frequency)
		}
		if !priorities[rt.Priority()] {
			c.errorf("requirement type '%s' has invalid default_priority: '%s'", rt.Code, rt.DefaultPriority)
		}
		for _, code := range rt.ApplicableEntityTypes {
			if !entityCodes[code] {
				c.errorf("requirement type '%s' references unknown entity type: '%s'", rt.Code, code)
			}
		}
		for _, code := range rt.RequiredDocumentTypes {
			if !docCodes[code] {
				c.errorf("requirement type '%s' references unknown document type: '%s'", rt.Code, code)
			}
		}
		for _, d := range rt.NotificationRules.DaysBefore {
			if d <= 0 {
				c.errorf("requirement type '%s' has invalid days_before value: %d", rt.Code, d)
			}
		}
		if rt.ExpiringSoonDays != nil && *rt.ExpiringSoonDays < 0 {
			c.errorf("requirement type '%s' has negative expiring_soon_days: %d", rt.Code, *rt.ExpiringSoonDays)
		}
		if esc := rt.NotificationRules.Escalation; esc != nil && esc.AfterDays <= 0 {
			c.errorf("requirement type '%s' has invalid escalation after_days: %d", rt.Code, esc.AfterDays)
		}
	}
	return seen
}

func (c *checker) checkDocumentTypes(types []DocumentTypeDef, reqCodes map[string]bool) {
	seen := map[string]bool{}
	for _, dt := range types {
		if seen[dt.Code] {
			c.errorf("duplicate document type code: %s", dt.Code)
		}
		seen[dt.Code] = true

		if strings.TrimSpace(dt.ExtractionPrompt) == "" {
			c.warnf("document type '%s' has no extraction_prompt", dt.Code)
		}
		if dt.ConfidenceThreshold != nil && (*dt.ConfidenceThreshold <= 0 || *dt.ConfidenceThreshold > 1) {
			c.errorf("document type '%s' confidence_threshold must be in (0,1], got %v", dt.Code, *dt.ConfidenceThreshold)
		}
		if dt.RequirementType != "" && !reqCodes[dt.RequirementType] {
			c.errorf("document type '%s' references unknown requirement type: '%s'", dt.Code, dt.RequirementType)
		}

		fields := map[string]ExtractionField{}
		for _, fd := range dt.ExtractionSchema.Fields {
			if _, dup := fields[fd.Name]; dup {
				c.errorf("document type '%s' declares extraction field '%s' twice", dt.Code, fd.Name)
			}
			fields[fd.Name] = fd
			if !fd.Type.Valid() {
				c.errorf("document type '%s' extraction field '%s' has invalid type '%s'", dt.Code, fd.Name, fd.Type)
			}
		}
		for _, vr := range dt.ValidationRules {
			c.checkValidationRule(dt.Code, vr, fields)
		}
	}
}

func (c *checker) checkValidationRule(docCode string, vr ValidationRule, fields map[string]ExtractionField) {
	if _, ok := fields[vr.Field]; !ok {
		c.errorf("document type '%s' validation rule references unknown field: '%s'", docCode, vr.Field)
	}
	if !vr.Rule.Valid() {
		c.errorf("document type '%s' has unknown validation rule: '%s'", docCode, vr.Rule)
		return
	}
	switch vr.Rule {
	case RuleDateAfter, RuleDateBefore:
		ref, ok := vr.Value.(string)
		if !ok || ref == "" {
			c.errorf("document type '%s' rule %s on '%s' needs a field name or date value", docCode, vr.Rule, vr.Field)
			return
		}
		if _, isField := fields[ref]; !isField {
			if _, err := ParseDate(ref); err != nil {
				c.errorf("document type '%s' rule %s on '%s' references unknown field or invalid date '%s'", docCode, vr.Rule, vr.Field, ref)
			}
		}
	case RuleRequiredIf:
		ref, ok := vr.Value.(string)
		if !ok || ref == "" {
			c.errorf("document type '%s' rule required_if on '%s' needs a field name value", docCode, vr.Field)
		} else if _, isField := fields[ref]; !isField {
			c.errorf("document type '%s' rule required_if on '%s' references unknown field '%s'", docCode, vr.Field, ref)
		}
	case RuleMinValue, RuleMaxValue:
		if _, ok := ToFloat(vr.Value); !ok {
			c.errorf("document type '%s' rule %s on '%s' needs a numeric value", docCode, vr.Rule, vr.Field)
		}
	case RuleMinLength, RuleMaxLength:
		if n, ok := ToFloat(vr.Value); !ok || n < 0 || n != float64(int(n)) {
			c.errorf("document type '%s' rule %s on '%s' needs a non-negative integer value", docCode, vr.Rule, vr.Field)
		}
	case RulePattern:
		p, ok := vr.Value.(string)
		if !ok {
			c.errorf("document type '%s' rule pattern on '%s' needs a string value", docCode, vr.Field)
		} else if _, err := regexp.Compile(p); err != nil {
			c.errorf("document type '%s' rule pattern on '%s' does not compile: %v", docCode, vr.Field, err)
		}
	case RuleOneOf:
		if _, ok := vr.Value.([]any); !ok {
			c.errorf("document type '%s' rule one_of on '%s' needs a list value", docCode, vr.Field)
		}
	}
}

func (c *checker) checkWorkflowRules(rules []WorkflowRule, reqCodes map[string]bool) {
	seen := map[string]bool{}
	for _, wr := range rules {
		if seen[wr.Code] {
			c.errorf("duplicate workflow rule code: %s", wr.Code)
		}
		seen[wr.Code] = true
		if !wr.Trigger.Event.Valid() {
			c.errorf("workflow rule '%s' has invalid trigger event: '%s'", wr.Code, wr.Trigger.Event)
		}
		for _, cond := range wr.Trigger.Conditions {
			if !cond.Operator.Valid() {
				c.errorf("workflow rule '%s' has invalid condition operator: '%s'", wr.Code, cond.Operator)
			}
		}
		for _, act := range wr.Actions {
			if !act.Type.Valid() {
				c.errorf("workflow rule '%s' has invalid action type: '%s'", wr.Code, act.Type)
				continue
			}
			switch act.Type {
			case ActionCreateRequirement:
				code := act.Param("requirement_type", "")
				if code == "" || !reqCodes[code] {
					c.errorf("workflow rule '%s' create_requirement references unknown requirement type: '%s'", wr.Code, code)
				}
			case ActionSendNotification:
				nt := act.Param("notification_type", "")
				if nt != "" && !noticeTypes[constants.NotificationType(nt)] {
					c.errorf("workflow rule '%s' send_notification has invalid notification_type: '%s'", wr.Code, nt)
				}
			case ActionAssignUser:
				if act.Param("email", "") == "" {
					c.errorf("workflow rule '%s' assign_user needs an email param", wr.Code)
				}
			}
		}
	}
}

func (c *checker) checkTemplates(templates []NotificationTemplate) {
	seen := map[string]bool{}
	for _, nt := range templates {
		if seen[nt.Code] {
			c.errorf("duplicate notification template code: %s", nt.Code)
		}
		seen[nt.Code] = true
		if !noticeTypes[nt.NotificationType] {
			c.errorf("notification template '%s' has invalid notification_type: '%s'", nt.Code, nt.NotificationType)
		}
		if nt.Channel != "" && !channels[nt.Channel] {
			c.errorf("notification template '%s' has invalid channel: '%s'", nt.Code, nt.Channel)
		}
		if _, err := template.New(nt.Code).Funcs(sprig.TxtFuncMap()).Parse(nt.Subject); err != nil {
			c.errorf("notification template '%s' subject does not parse: %v", nt.Code, err)
		}
		if _, err := template.New(nt.Code).Funcs(sprig.TxtFuncMap()).Parse(nt.Body); err != nil {
			c.errorf("notification template '%s' body does not parse: %v", nt.Code, err)
		}
		if !strings.Contains(nt.Subject, "{{") && !strings.Contains(nt.Body, "{{") {
			c.warnf("notification template '%s' has no template variables", nt.Code)
		}
	}
}
