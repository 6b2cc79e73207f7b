package llm

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

var (
	truthy = map[string]bool{"true": true, "yes": true, "1": true, "x": true, "checked": true}
	falsy  = map[string]bool{"false": true, "no": true, "0": true}
)

// CleanValue normalizes one raw model value for its field type.
// It returns nil for values that count as missing. Values that cannot be
// coerced are returned unchanged so the type check flags them.
func CleanValue(t niche.FieldType, v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			return nil
		}
		v = s
	}

	switch t {
	case niche.FieldNumber:
		if s, ok := v.(string); ok {
			cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
			d, err := decimal.NewFromString(cleaned)
			if err != nil {
				return s
			}
			return d.InexactFloat64()
		}
		return v
	case niche.FieldDate:
		if s, ok := v.(string); ok {
			if d, err := niche.ParseDate(s); err == nil {
				return d.Format(niche.DateLayout)
			}
		}
		return v
	case niche.FieldBoolean:
		switch b := v.(type) {
		case bool:
			return b
		case float64:
			if b == 1 {
				return true
			}
			if b == 0 {
				return false
			}
		case string:
			l := strings.ToLower(b)
			if truthy[l] {
				return true
			}
			if falsy[l] {
				return false
			}
		}
		return v
	default:
		return v
	}
}
