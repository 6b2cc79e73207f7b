package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/workflow"
)

// Correction is a reviewer's edit of extracted values. Only the listed fields change.
type Correction struct {
	ExtractedData map[string]any `json:"extracted_data"`
	EntityID      *uuid.UUID     `json:"entity_id,omitempty"`
}

// Correct applies reviewer values to a processed or needs_review document. Corrected
// fields score 1.0; the status never changes. A required field cannot be cleared and
// every value must match its field type. A processed document gets its overall
// confidence recomputed, a needs_review document keeps the extraction score so it stays
// below its threshold. Linking and the document.processed rules run again, OCR and
// extraction do not.
func (s *Service) Correct(ctx context.Context, accountID, id uuid.UUID, c Correction) (*entity.Document, error) {
	doc, err := s.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != constants.DocumentProcessed && doc.Status != constants.DocumentNeedsReview {
		return nil, ErrInvalidTransition
	}
	if len(c.ExtractedData) == 0 && c.EntityID == nil {
		return nil, common.InvalidInputf("nothing to correct")
	}
	acc, err := s.store.Accounts.Get(ctx, doc.AccountID)
	if err != nil {
		return nil, err
	}
	reg, err := s.niches.Lookup(acc.NicheID)
	if err != nil {
		return nil, err
	}
	dt, ok := reg.DocumentType(doc.DocumentTypeCode)
	if !ok {
		return nil, common.InvalidInputf("document type %s is not configured", doc.DocumentTypeCode)
	}

	names := make([]string, 0, len(c.ExtractedData))
	for name := range c.ExtractedData {
		names = append(names, name)
	}
	sort.Strings(names)
	var unknown []string
	for _, name := range names {
		if _, ok := dt.ExtractionSchema.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, common.InvalidInputf("unknown fields for %s: %s", dt.Code, strings.Join(unknown, ", "))
	}

	var ent *entity.Entity
	if c.EntityID != nil {
		if ent, err = s.store.Entities.Get(ctx, *c.EntityID); err != nil {
			return nil, err
		}
		if ent.AccountID != acc.ID {
			return nil, common.NotFoundf("entity %s", *c.EntityID)
		}
		doc.EntityID = c.EntityID
	} else if doc.EntityID != nil {
		if ent, err = s.store.Entities.Get(ctx, *doc.EntityID); err != nil {
			return nil, err
		}
	}

	data := make(map[string]any, len(dt.ExtractionSchema.Fields))
	for k, val := range doc.ExtractedData {
		data[k] = val
	}
	conf := make(map[string]float64, len(dt.ExtractionSchema.Fields))
	for k, val := range doc.FieldConfidences {
		conf[k] = val
	}
	flags := make(map[string]string, len(doc.FlaggedFields))
	for k, val := range doc.FlaggedFields {
		flags[k] = val
	}
	var rejected []string
	for _, name := range names {
		f, _ := dt.ExtractionSchema.Field(name)
		v := llm.CleanValue(f.Type, c.ExtractedData[name])
		switch {
		case v == nil && f.Required:
			rejected = append(rejected, name+": required")
			continue
		case v != nil:
			if err := llm.ValidateType(f.Type, v); err != nil {
				rejected = append(rejected, name+": not a valid "+string(f.Type))
				continue
			}
		}
		data[name] = v
		conf[name] = 1.0
		delete(flags, name)
	}
	if len(rejected) > 0 {
		return nil, common.InvalidInputf("invalid corrections for %s: %s", dt.Code, strings.Join(rejected, ", "))
	}
	overall := doc.ExtractionConfidence
	if doc.Status == constants.DocumentProcessed {
		o := llm.Overall(dt.ExtractionSchema, conf)
		overall = &o
	}

	err = s.store.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.Documents.Correct(ctx, repository.DocumentCorrection{
			ID:                   doc.ID,
			EntityID:             c.EntityID,
			ExtractedData:        data,
			FieldConfidences:     conf,
			FlaggedFields:        flags,
			ExtractionConfidence: overall,
		}); err != nil {
			return err
		}
		doc.ExtractedData, doc.FieldConfidences, doc.FlaggedFields, doc.ExtractionConfidence = data, conf, flags, overall
		return s.link(ctx, &workflow.Subject{Registry: reg, Account: acc, Entity: ent, Document: doc})
	})
	if isStale(err) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("pipeline.correct.ok", "document_id", doc.ID, "fields", names, "status", doc.Status)
	return s.store.Documents.Get(ctx, doc.ID)
}
