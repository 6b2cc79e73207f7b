package crm

import (
	"time"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
)

// Aggregate summarises persisted requirement statuses for one entity.
// Any expired requirement makes the entity non_compliant, then any expiring_soon wins,
// then compliant when every requirement is compliant, else pending.
func Aggregate(reqs []*entity.Requirement, now time.Time) ComplianceStatus {
	out := ComplianceStatus{Status: StatusNoRequirements, LastUpdated: now.UTC()}
	if len(reqs) == 0 {
		return out
	}
	var expired, expiring bool
	allCompliant := true
	for _, r := range reqs {
		switch r.Status {
		case constants.RequirementExpired:
			expired = true
		case constants.RequirementExpiringSoon:
			expiring = true
		}
		if r.Status != constants.RequirementCompliant {
			allCompliant = false
		}
		if r.DueDate != nil && (out.Expiry == nil || r.DueDate.Before(*out.Expiry)) {
			d := *r.DueDate
			out.Expiry = &d
		}
	}
	switch {
	case expired:
		out.Status = StatusNonCompliant
	case expiring:
		out.Status = StatusExpiringSoon
	case allCompliant:
		out.Status = StatusCompliant
	default:
		out.Status = StatusPending
	}
	return out
}
