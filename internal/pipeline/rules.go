package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

// RuleViolation is a failed document validation rule. It makes the document failed
// without marking it retriable.
type RuleViolation struct {
	Rule    niche.RuleKind
	Field   string
	Message string
}

func (v *RuleViolation) Error() string {
	return fmt.Sprintf("validation rule %s failed for %s: %s", v.Rule, v.Field, v.Message)
}

// ruleFunc reports a message when value breaks the rule. value is never nil except
// for required_if.
type ruleFunc func(value any, rule niche.ValidationRule, data map[string]any, today time.Time) (string, bool)

var rules = map[niche.RuleKind]ruleFunc{
	niche.RuleDateAfter:     dateCompare(func(v, ref time.Time) bool { return v.After(ref) }, "must be after %s"),
	niche.RuleDateBefore:    dateCompare(func(v, ref time.Time) bool { return v.Before(ref) }, "must be before %s"),
	niche.RuleDateNotPast:   dateNotPast,
	niche.RuleDateNotFuture: dateNotFuture,
	niche.RuleMinValue:      numberCompare(func(v, lim float64) bool { return v >= lim }, "must be at least %v"),
	niche.RuleMaxValue:      numberCompare(func(v, lim float64) bool { return v <= lim }, "must be at most %v"),
	niche.RuleMinLength:     lengthCompare(func(n, lim int) bool { return n >= lim }, "must have at least %d characters"),
	niche.RuleMaxLength:     lengthCompare(func(n, lim int) bool { return n <= lim }, "must have at most %d characters"),
	niche.RulePattern:       pattern,
	niche.RuleOneOf:         oneOf,
	niche.RuleRequiredIf:    requiredIf,
}

// Validate runs the document type's rules in order and returns the first violation.
// Rules on absent fields are skipped; required_if is the only rule that checks presence.
func Validate(dt niche.DocumentTypeDef, data map[string]any, today time.Time) error {
	for _, r := range dt.ValidationRules {
		fn, ok := rules[r.Rule]
		if !ok {
			return &RuleViolation{Rule: r.Rule, Field: r.Field, Message: "unknown rule"}
		}
		value := data[r.Field]
		if isAbsent(value) && r.Rule != niche.RuleRequiredIf {
			continue
		}
		if msg, failed := fn(value, r, data, today); failed {
			if r.Message != "" {
				msg = r.Message
			}
			return &RuleViolation{Rule: r.Rule, Field: r.Field, Message: msg}
		}
	}
	return nil
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func asDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return requirementDay(t), true
	case string:
		d, err := niche.ParseDate(t)
		return d, err == nil
	}
	return time.Time{}, false
}

func requirementDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// reference resolves a rule value naming another extracted field, else a literal.
func reference(raw any, data map[string]any) any {
	if name, ok := raw.(string); ok {
		if v, found := data[name]; found {
			return v
		}
	}
	return raw
}

func dateCompare(ok func(v, ref time.Time) bool, format string) ruleFunc {
	return func(value any, r niche.ValidationRule, data map[string]any, _ time.Time) (string, bool) {
		v, valid := asDate(value)
		if !valid {
			return fmt.Sprintf("%v is not a date", value), true
		}
		refValue := reference(r.Value, data)
		if isAbsent(refValue) {
			return "", false
		}
		ref, valid := asDate(refValue)
		if !valid {
			return fmt.Sprintf("reference %v is not a date", r.Value), true
		}
		if ok(v, ref) {
			return "", false
		}
		return fmt.Sprintf(format, ref.Format(niche.DateLayout)), true
	}
}

func dateNotPast(value any, _ niche.ValidationRule, _ map[string]any, today time.Time) (string, bool) {
	v, valid := asDate(value)
	if !valid {
		return fmt.Sprintf("%v is not a date", value), true
	}
	if v.Before(requirementDay(today)) {
		return "must not be in the past", true
	}
	return "", false
}

func dateNotFuture(value any, _ niche.ValidationRule, _ map[string]any, today time.Time) (string, bool) {
	v, valid := asDate(value)
	if !valid {
		return fmt.Sprintf("%v is not a date", value), true
	}
	if v.After(requirementDay(today)) {
		return "must not be in the future", true
	}
	return "", false
}

func numberCompare(ok func(v, lim float64) bool, format string) ruleFunc {
	return func(value any, r niche.ValidationRule, data map[string]any, _ time.Time) (string, bool) {
		v, valid := niche.ToFloat(value)
		if !valid {
			return fmt.Sprintf("%v is not a number", value), true
		}
		lim, valid := niche.ToFloat(reference(r.Value, data))
		if !valid {
			return fmt.Sprintf("limit %v is not a number", r.Value), true
		}
		if ok(v, lim) {
			return "", false
		}
		return fmt.Sprintf(format, r.Value), true
	}
}

func lengthCompare(ok func(n, lim int) bool, format string) ruleFunc {
	return func(value any, r niche.ValidationRule, _ map[string]any, _ time.Time) (string, bool) {
		lim, valid := niche.ToFloat(r.Value)
		if !valid {
			return fmt.Sprintf("limit %v is not a number", r.Value), true
		}
		var n int
		switch v := value.(type) {
		case string:
			n = utf8.RuneCountInString(v)
		case []any:
			n = len(v)
		default:
			n = utf8.RuneCountInString(fmt.Sprint(v))
		}
		if ok(n, int(lim)) {
			return "", false
		}
		return fmt.Sprintf(format, int(lim)), true
	}
}

func pattern(value any, r niche.ValidationRule, _ map[string]any, _ time.Time) (string, bool) {
	expr, _ := r.Value.(string)
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Sprintf("invalid pattern %q", expr), true
	}
	if re.MatchString(fmt.Sprint(value)) {
		return "", false
	}
	return fmt.Sprintf("does not match %s", expr), true
}

func oneOf(value any, r niche.ValidationRule, _ map[string]any, _ time.Time) (string, bool) {
	allowed, _ := r.Value.([]any)
	got := fmt.Sprint(value)
	names := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if strings.EqualFold(fmt.Sprint(a), got) {
			return "", false
		}
		names = append(names, fmt.Sprint(a))
	}
	return fmt.Sprintf("must be one of %s", strings.Join(names, ", ")), true
}

// requiredIf takes either another field name, required when that field is present, or
// {field, equals}, required when that field has the given value.
func requiredIf(value any, r niche.ValidationRule, data map[string]any, _ time.Time) (string, bool) {
	if !isAbsent(value) {
		return "", false
	}
	var other string
	var want any
	switch v := r.Value.(type) {
	case string:
		other = v
	case map[string]any:
		other, _ = v["field"].(string)
		want = v["equals"]
	}
	got := data[other]
	if isAbsent(got) {
		return "", false
	}
	if want != nil && !strings.EqualFold(fmt.Sprint(got), fmt.Sprint(want)) {
		return "", false
	}
	return fmt.Sprintf("is required when %s is set", other), true
}
