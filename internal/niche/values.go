package niche

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical stored date format.
const DateLayout = "2006-01-02"

// dateLayouts are tried in order; US month-first wins over day-first for ambiguous input.
var dateLayouts = []string{
	DateLayout,
	"01/02/2006",
	"01-02-2006",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006/01/02",
	time.RFC3339,
}

// ParseDate parses the date formats seen on certificates and licenses.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ToFloat coerces YAML and JSON numeric values.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
