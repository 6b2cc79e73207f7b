package notify

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
)

// Facts is everything a notification template can reference.
type Facts struct {
	User        *entity.User
	Entity      *entity.Entity
	Requirement *entity.Requirement
	Document    *entity.Document
	Account     *entity.Account
	Today       time.Time
	AppURL      string
	Extra       map[string]any
}

// TemplateData builds the render context. Every key is always present so templates
// rendered with missingkey=error fail only on genuinely unknown names.
func TemplateData(f Facts) map[string]any {
	user := map[string]any{"id": "", "email": "", "first_name": "", "last_name": ""}
	if u := f.User; u != nil {
		first := u.FirstName
		if first == "" {
			first, _, _ = strings.Cut(u.Email, "@")
		}
		user = map[string]any{"id": u.ID.String(), "email": u.Email, "first_name": first, "last_name": u.LastName}
	}

	ent := map[string]any{"id": "", "name": "", "email": "", "phone": "", "entity_type": "", "custom_fields": map[string]any{}}
	if e := f.Entity; e != nil {
		ent = map[string]any{
			"id":            e.ID.String(),
			"name":          e.Name,
			"email":         deref(e.Email),
			"phone":         deref(e.Phone),
			"entity_type":   e.TypeCode,
			"custom_fields": nonNil(e.CustomFields),
		}
	}

	days, overdue := 0, 0
	req := map[string]any{"id": "", "name": "", "due_date": "", "status": "", "priority": "", "requirement_type": ""}
	if r := f.Requirement; r != nil {
		due := ""
		if r.DueDate != nil {
			due = r.DueDate.Format(niche.DateLayout)
			d := requirement.DaysUntil(*r.DueDate, f.Today)
			if d >= 0 {
				days = d
			} else {
				overdue = -d
			}
		}
		req = map[string]any{
			"id":               r.ID.String(),
			"name":             r.Name,
			"due_date":         due,
			"status":           string(r.Status),
			"priority":         r.Priority,
			"requirement_type": r.RequirementTypeCode,
		}
	}

	doc := map[string]any{"id": "", "file_name": "", "document_type": "", "extracted_data": map[string]any{}}
	if d := f.Document; d != nil {
		doc = map[string]any{
			"id":             d.ID.String(),
			"file_name":      d.FileName,
			"document_type":  d.DocumentTypeCode,
			"extracted_data": nonNil(d.ExtractedData),
		}
	}

	acc := map[string]any{"id": "", "name": ""}
	if a := f.Account; a != nil {
		acc = map[string]any{"id": a.ID.String(), "name": a.Name}
	}

	data := map[string]any{
		"user":           user,
		"entity":         ent,
		"requirement":    req,
		"document":       doc,
		"account":        acc,
		"days":           days,
		"days_until_due": days,
		"days_overdue":   overdue,
		"app_url":        strings.TrimRight(f.AppURL, "/"),
	}
	for k, v := range f.Extra {
		if _, taken := data[k]; !taken {
			data[k] = v
		}
	}
	return data
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
