package workflow

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

// Matches reports whether every condition holds. No conditions always match.
func Matches(conds []niche.Condition, data map[string]any) bool {
	for _, c := range conds {
		if !evaluate(c, data) {
			return false
		}
	}
	return true
}

func evaluate(c niche.Condition, data map[string]any) bool {
	actual, present := data[c.Field]
	switch c.Operator {
	case niche.OpEquals:
		return present && equal(actual, c.Value)
	case niche.OpNotEquals:
		return !present || !equal(actual, c.Value)
	case niche.OpGreaterThan, niche.OpLessThan, niche.OpGreaterThanOrEqual, niche.OpLessThanOrEqual:
		if !present {
			return false
		}
		cmp, ok := compare(actual, c.Value)
		if !ok {
			return false
		}
		switch c.Operator {
		case niche.OpGreaterThan:
			return cmp > 0
		case niche.OpLessThan:
			return cmp < 0
		case niche.OpGreaterThanOrEqual:
			return cmp >= 0
		default:
			return cmp <= 0
		}
	case niche.OpContains:
		return present && contains(actual, c.Value)
	case niche.OpNotContains:
		return !present || !contains(actual, c.Value)
	case niche.OpIn:
		return present && contains(c.Value, actual)
	case niche.OpNotIn:
		return !present || !contains(c.Value, actual)
	}
	return false
}

func equal(a, b any) bool {
	if fa, ok := niche.ToFloat(a); ok {
		if fb, ok := niche.ToFloat(b); ok {
			return fa == fb
		}
	}
	return strings.EqualFold(toString(a), toString(b))
}

// compare orders numbers numerically and everything else as strings,
// which orders YYYY-MM-DD dates correctly.
func compare(a, b any) (int, bool) {
	fa, okA := niche.ToFloat(a)
	fb, okB := niche.ToFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if a == nil || b == nil {
		return 0, false
	}
	return strings.Compare(toString(a), toString(b)), true
}

// contains checks list membership for slices and substring for strings.
func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, v := range h {
			if equal(v, needle) {
				return true
			}
		}
		return false
	case []string:
		for _, v := range h {
			if equal(v, needle) {
				return true
			}
		}
		return false
	case nil:
		return false
	}
	return strings.Contains(strings.ToLower(toString(haystack)), strings.ToLower(toString(needle)))
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
