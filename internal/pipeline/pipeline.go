// Package pipeline runs uploaded documents through OCR, extraction, validation and
// requirement linking.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/blob"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm"
	"github.com/joseph-ayodele/compliance-tracker/internal/metrics"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/ocr"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
	"github.com/joseph-ayodele/compliance-tracker/internal/workflow"
)

var (
	// ErrAlreadyProcessing is returned when another request holds the document.
	ErrAlreadyProcessing = common.NewAppError("ALREADY_PROCESSING", "document is already processing", common.ErrConflict)
	// ErrInvalidTransition rejects an operation the document's status does not allow.
	ErrInvalidTransition = common.NewAppError("INVALID_TRANSITION", "document status does not allow this operation", common.ErrConflict)
)

// TextExtractor is the OCR stage.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (ocr.Result, error)
}

// FieldExtractor is the language-model extraction stage.
type FieldExtractor interface {
	Extract(ctx context.Context, rawText string, schema niche.ExtractionSchema, prompt string) (llm.Result, error)
}

type Service struct {
	store        *repository.Store
	niches       *niche.Store
	blobs        blob.Store
	ocr          TextExtractor
	extractor    FieldExtractor
	workflow     *workflow.Engine
	requirements *requirement.Service
	now          func() time.Time
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(
	store *repository.Store,
	niches *niche.Store,
	blobs blob.Store,
	ocr TextExtractor,
	extractor FieldExtractor,
	engine *workflow.Engine,
	requirements *requirement.Service,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:        store,
		niches:       niches,
		blobs:        blobs,
		ocr:          ocr,
		extractor:    extractor,
		workflow:     engine,
		requirements: requirements,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UploadInput struct {
	AccountID        uuid.UUID
	EntityID         *uuid.UUID
	DocumentTypeCode string
	FileName         string
	MimeType         string // sniffed when empty or application/octet-stream
	Data             []byte
}

// Upload stores the bytes and creates a pending document, then fires document.uploaded.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*entity.Document, error) {
	if err := common.NewValidator().
		Field("document_type", in.DocumentTypeCode, common.Required).
		Field("file_name", in.FileName, common.Required, common.MaxLength(255)).
		Err(); err != nil {
		return nil, err
	}
	if len(in.Data) == 0 {
		return nil, common.InvalidInputf("file is empty")
	}
	acc, err := s.store.Accounts.Get(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	reg, err := s.niches.Lookup(acc.NicheID)
	if err != nil {
		return nil, err
	}
	dt, ok := reg.DocumentType(in.DocumentTypeCode)
	if !ok {
		return nil, common.InvalidInputf("unknown document type %q", in.DocumentTypeCode)
	}
	var ent *entity.Entity
	if in.EntityID != nil {
		if ent, err = s.store.Entities.Get(ctx, *in.EntityID); err != nil {
			return nil, err
		}
		if ent.AccountID != acc.ID {
			return nil, common.NotFoundf("entity %s", *in.EntityID)
		}
	}

	mime := constants.NormalizeMime(in.MimeType)
	if mime == "" || mime == "application/octet-stream" {
		mime = constants.NormalizeMime(mimetype.Detect(in.Data).String())
	}
	if !dt.Accepts(mime) {
		return nil, common.InvalidInputf("document type %s does not accept %s", dt.Code, mime)
	}

	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(in.FileName))
	if ext == "" {
		ext = constants.ExtForMime(mime)
	}
	key := blob.DocumentKey(acc.ID.String(), id.String(), ext)
	if err := s.blobs.Put(ctx, key, in.Data, mime); err != nil {
		return nil, err
	}
	doc := &entity.Document{
		ID:               id,
		AccountID:        acc.ID,
		EntityID:         in.EntityID,
		DocumentTypeCode: dt.Code,
		FileName:         filepath.Base(in.FileName),
		MimeType:         mime,
		StorageKey:       key,
		SizeBytes:        int64(len(in.Data)),
		Status:           constants.DocumentPending,
	}
	if err := s.store.Documents.Create(ctx, doc); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.logger.Warn("pipeline.upload.cleanup_failed", "key", key, "error", derr)
		}
		return nil, err
	}
	s.logger.Info("pipeline.upload.ok", "document_id", doc.ID, "account_id", acc.ID, "type", dt.Code, "mime", mime, "size", doc.SizeBytes)

	if _, err := s.workflow.Fire(ctx, niche.EventDocumentUploaded, &workflow.Subject{Registry: reg, Account: acc, Entity: ent, Document: doc}); err != nil {
		s.logger.Error("pipeline.upload.workflow_error", "document_id", doc.ID, "error", err)
	}
	return doc, nil
}

// Get returns a document of the account.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*entity.Document, error) {
	doc, err := s.store.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.AccountID != accountID {
		return nil, common.NotFoundf("document %s", id)
	}
	return doc, nil
}

// Retry moves a failed document back to pending.
func (s *Service) Retry(ctx context.Context, accountID, id uuid.UUID) (*entity.Document, error) {
	if _, err := s.Get(ctx, accountID, id); err != nil {
		return nil, err
	}
	ok, err := s.store.Documents.Reset(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	s.logger.Info("pipeline.retry.ok", "document_id", id)
	return s.store.Documents.Get(ctx, id)
}

// claimError explains a lost claim.
func (s *Service) claimError(ctx context.Context, id uuid.UUID) error {
	doc, err := s.store.Documents.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == constants.DocumentProcessing {
		return ErrAlreadyProcessing
	}
	return ErrInvalidTransition
}

func isStale(err error) bool { return errors.Is(err, repository.ErrStaleState) }
