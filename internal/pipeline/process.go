package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/ocr"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/workflow"
)

// stageError is a processing failure that ends the run with status=failed.
type stageError struct {
	stage     string
	retriable bool
	err       error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Process claims a pending document and runs it to a terminal status. Stage failures
// are recorded on the document and returned as a failed document, not as an error.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	start := time.Now()
	log := s.logger.With("document_id", id)

	won, err := s.store.Documents.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, s.claimError(ctx, id)
	}
	log.Info("pipeline.process.start")

	doc, err := s.store.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	acc, err := s.store.Accounts.Get(ctx, doc.AccountID)
	if err != nil {
		return nil, s.abandon(ctx, doc, err)
	}
	reg, err := s.niches.Lookup(acc.NicheID)
	if err != nil {
		return nil, s.abandon(ctx, doc, err)
	}
	dt, ok := reg.DocumentType(doc.DocumentTypeCode)
	if !ok {
		return s.finishFailed(ctx, doc, &stageError{stage: "config", err: errors.New("document type " + doc.DocumentTypeCode + " is not configured")})
	}

	text, extracted, err := s.runStages(ctx, doc, dt)
	if err != nil {
		out := s.failedOutcome(doc, err)
		out.RawText = text
		keepExtraction(&out, extracted)
		if err := s.store.Documents.Complete(ctx, out); err != nil {
			return nil, err
		}
		return s.finish(ctx, id, out.Status, nil)
	}

	conf := extracted.OverallConfidence
	status := constants.DocumentNeedsReview
	if conf >= dt.Threshold() {
		status = constants.DocumentProcessed
	}
	out := repository.DocumentOutcome{
		ID:                   doc.ID,
		Status:               status,
		RawText:              text,
		ExtractedData:        extracted.Fields,
		FieldConfidences:     extracted.FieldConfidences,
		FlaggedFields:        extracted.Flags,
		ExtractionConfidence: &conf,
		ProcessedAt:          s.now().UTC(),
	}

	var ent *entity.Entity
	if doc.EntityID != nil {
		if ent, err = s.store.Entities.Get(ctx, *doc.EntityID); err != nil {
			return nil, s.abandon(ctx, doc, err)
		}
	}
	err = s.store.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.Documents.Complete(ctx, out); err != nil {
			return err
		}
		if status != constants.DocumentProcessed {
			return nil
		}
		applyOutcome(doc, out)
		return s.link(ctx, &workflow.Subject{Registry: reg, Account: acc, Entity: ent, Document: doc})
	})
	if err != nil {
		if isStale(err) {
			return nil, ErrInvalidTransition
		}
		log.Error("pipeline.process.persist_error", "error", err)
		failed := s.failedOutcome(doc, &stageError{stage: "persist", retriable: true, err: err})
		failed.RawText = text
		if cerr := s.store.Documents.Complete(context.WithoutCancel(ctx), failed); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return s.finish(ctx, id, failed.Status, nil)
	}

	log.Info("pipeline.process.ok", "status", status, "confidence", conf, "threshold", dt.Threshold(),
		"flagged", len(extracted.Flags), "elapsed_ms", time.Since(start).Milliseconds())
	return s.finish(ctx, id, status, &conf)
}

// runStages loads the blob, then runs OCR, extraction and the validation rules in order.
func (s *Service) runStages(ctx context.Context, doc *entity.Document, dt niche.DocumentTypeDef) (*string, llm.Result, error) {
	data, err := s.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, llm.Result{}, &stageError{stage: "storage", retriable: true, err: err}
	}

	res, err := s.ocr.ExtractText(ctx, data, doc.MimeType)
	if err != nil {
		return nil, llm.Result{}, &stageError{stage: "ocr", retriable: ocr.IsRetriable(err), err: err}
	}
	text := res.Text
	s.logger.Debug("pipeline.ocr.ok", "document_id", doc.ID, "pages", res.Pages, "backend", res.Backend, "chars", len(text))

	extracted, err := s.extractor.Extract(ctx, text, dt.ExtractionSchema, dt.ExtractionPrompt)
	if err != nil {
		var te *llm.TransportError
		return &text, extracted, &stageError{stage: "extraction", retriable: errors.As(err, &te) && te.Retriable, err: err}
	}

	if err := Validate(dt, extracted.Fields, s.now()); err != nil {
		return &text, extracted, err
	}
	return &text, extracted, nil
}

// link runs the document.processed rules, then re-derives the linked requirement.
func (s *Service) link(ctx context.Context, subj *workflow.Subject) error {
	if _, err := s.workflow.Fire(ctx, niche.EventDocumentProcessed, subj); err != nil {
		return err
	}
	if subj.Requirement == nil {
		return nil
	}
	_, err := s.requirements.Refresh(ctx, subj.Requirement.ID, s.requirements.Today())
	return err
}

func (s *Service) failedOutcome(doc *entity.Document, err error) repository.DocumentOutcome {
	msg := err.Error()
	out := repository.DocumentOutcome{ID: doc.ID, Status: constants.DocumentFailed, ProcessingError: &msg, ProcessedAt: s.now().UTC()}
	var se *stageError
	if errors.As(err, &se) {
		out.ErrorRetriable = se.retriable
	}
	var rv *RuleViolation
	if errors.As(err, &rv) {
		out.FlaggedFields = map[string]string{rv.Field: string(rv.Rule)}
	}
	s.logger.Warn("pipeline.process.failed", "document_id", doc.ID, "error", msg, "retriable", out.ErrorRetriable)
	return out
}

func (s *Service) finishFailed(ctx context.Context, doc *entity.Document, err error) (*entity.Document, error) {
	out := s.failedOutcome(doc, err)
	if err := s.store.Documents.Complete(ctx, out); err != nil {
		return nil, err
	}
	return s.finish(ctx, doc.ID, out.Status, nil)
}

// abandon records an infrastructure failure so the document does not stay processing.
func (s *Service) abandon(ctx context.Context, doc *entity.Document, cause error) error {
	out := s.failedOutcome(doc, &stageError{stage: "load", retriable: true, err: cause})
	if err := s.store.Documents.Complete(context.WithoutCancel(ctx), out); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (s *Service) finish(ctx context.Context, id uuid.UUID, status constants.DocumentStatus, conf *float64) (*entity.Document, error) {
	s.metrics.DocumentProcessed(string(status), conf)
	return s.store.Documents.Get(ctx, id)
}

// keepExtraction stores what the model returned on a failed run so reviewers can see it.
func keepExtraction(out *repository.DocumentOutcome, res llm.Result) {
	if res.Fields == nil {
		return
	}
	conf := res.OverallConfidence
	out.ExtractedData = res.Fields
	out.FieldConfidences = res.FieldConfidences
	out.ExtractionConfidence = &conf
	flags := make(map[string]string, len(res.Flags)+len(out.FlaggedFields))
	for k, v := range res.Flags {
		flags[k] = v
	}
	for k, v := range out.FlaggedFields {
		flags[k] = v
	}
	out.FlaggedFields = flags
}

func applyOutcome(doc *entity.Document, out repository.DocumentOutcome) {
	doc.Status = out.Status
	doc.RawText = out.RawText
	doc.ExtractedData = out.ExtractedData
	doc.FieldConfidences = out.FieldConfidences
	doc.FlaggedFields = out.FlaggedFields
	doc.ExtractionConfidence = out.ExtractionConfidence
	processed := out.ProcessedAt
	doc.ProcessedAt = &processed
}
