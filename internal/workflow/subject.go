// Package workflow runs the niche workflow rules for domain events.
package workflow

import (
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

// Subject is what an event is about. Actions may fill in Requirement.
type Subject struct {
	Registry    *niche.Registry
	Account     *entity.Account
	Entity      *entity.Entity
	Document    *entity.Document
	Requirement *entity.Requirement
}

// Data flattens the subject into the values conditions compare against.
// Extracted fields are available by bare name and as "extracted_data.<name>".
func (s *Subject) Data() map[string]any {
	data := map[string]any{}
	if d := s.Document; d != nil {
		for k, v := range d.ExtractedData {
			data[k] = v
			data["extracted_data."+k] = v
		}
		data["document_id"] = d.ID.String()
		data["document_type"] = d.DocumentTypeCode
		data["document_status"] = string(d.Status)
		data["mime_type"] = d.MimeType
		data["status"] = string(d.Status)
		if d.ExtractionConfidence != nil {
			data["extraction_confidence"] = *d.ExtractionConfidence
			data["confidence"] = *d.ExtractionConfidence
		}
	}
	if e := s.Entity; e != nil {
		data["entity_id"] = e.ID.String()
		data["entity_type"] = e.TypeCode
		data["entity_name"] = e.Name
		if e.Email != nil {
			data["entity_email"] = *e.Email
		}
		for k, v := range e.CustomFields {
			data["custom_fields."+k] = v
		}
	}
	if r := s.Requirement; r != nil {
		data["requirement_id"] = r.ID.String()
		data["requirement_type"] = r.RequirementTypeCode
		data["requirement_status"] = string(r.Status)
		data["priority"] = r.Priority
		if r.DueDate != nil {
			data["due_date"] = r.DueDate.Format(niche.DateLayout)
		}
		if s.Document == nil {
			data["status"] = string(r.Status)
		}
	}
	return data
}
