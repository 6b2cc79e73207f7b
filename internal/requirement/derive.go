// Package requirement derives and persists requirement compliance status.
package requirement

import (
	"time"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

// Input is everything Derive looks at.
type Input struct {
	DueDate              *time.Time
	Today                time.Time
	WindowDays           int
	LinkedDocumentStatus constants.DocumentStatus // "" when no document is linked
	ManualOverride       bool
}

// Derive computes the status of a requirement. Dates compare as calendar days in UTC.
//
//	expired        due < today
//	expiring_soon  today <= due <= today+N
//	compliant      linked document processed and due > today+N
//	pending        otherwise
//
// A manual override always yields compliant.
func Derive(in Input) constants.RequirementStatus {
	if in.ManualOverride {
		return constants.RequirementCompliant
	}
	if in.DueDate == nil {
		return constants.RequirementPending
	}
	due, today := Day(*in.DueDate), Day(in.Today)
	switch {
	case due.Before(today):
		return constants.RequirementExpired
	case !due.After(today.AddDate(0, 0, in.WindowDays)):
		return constants.RequirementExpiringSoon
	case in.LinkedDocumentStatus == constants.DocumentProcessed:
		return constants.RequirementCompliant
	default:
		return constants.RequirementPending
	}
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil is the signed number of calendar days from today to due.
func DaysUntil(due, today time.Time) int {
	return int(Day(due).Sub(Day(today)).Hours() / 24)
}
