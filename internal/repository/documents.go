package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
)

// ErrStaleState is returned when a guarded status update matched no row.
var ErrStaleState = errors.New("document is not in the expected state")

// DocumentOutcome is the terminal write of one processing run.
type DocumentOutcome struct {
	ID                   uuid.UUID
	Status               constants.DocumentStatus
	RawText              *string
	ExtractedData        map[string]any
	FieldConfidences     map[string]float64
	FlaggedFields        map[string]string
	ExtractionConfidence *float64
	ProcessingError      *string
	ErrorRetriable       bool
	ProcessedAt          time.Time
}

// DocumentCorrection replaces the extracted data of a processed or needs_review document.
type DocumentCorrection struct {
	ID                   uuid.UUID
	EntityID             *uuid.UUID
	ExtractedData        map[string]any
	FieldConfidences     map[string]float64
	FlaggedFields        map[string]string
	ExtractionConfidence *float64
}

type DocumentRepository interface {
	Create(ctx context.Context, d *entity.Document) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	// Claim moves pending -> processing atomically and reports whether this caller won.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	// Complete writes a terminal state; it only matches rows still in processing.
	Complete(ctx context.Context, out DocumentOutcome) error
	// Reset moves failed -> pending and reports whether the row changed.
	Reset(ctx context.Context, id uuid.UUID) (bool, error)
	Correct(ctx context.Context, c DocumentCorrection) error
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*entity.Document, error)
}

type documentRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepository{db: db, logger: logger}
}

var documentColumns = []string{
	"id", "account_id", "entity_id", "document_type_code", "file_name", "mime_type", "storage_key",
	"size_bytes", "status", "raw_text", "extracted_data", "field_confidences", "flagged_fields",
	"extraction_confidence", "processing_error", "error_retriable", "attempts", "processed_at",
	"created_at", "updated_at",
}

func (r *documentRepository) Create(ctx context.Context, d *entity.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	d.Status = constants.DocumentPending
	q := r.db.builder().Insert(tableDocuments).Columns(
		"id", "account_id", "entity_id", "document_type_code", "file_name", "mime_type",
		"storage_key", "size_bytes", "status", "error_retriable", "attempts", "created_at", "updated_at",
	).Values(
		d.ID, d.AccountID, uuidArg(d.EntityID), d.DocumentTypeCode, d.FileName, d.MimeType,
		d.StorageKey, d.SizeBytes, string(d.Status), false, 0, now, now,
	)
	if _, err := r.db.exec(ctx, q); err != nil {
		r.logger.Error("failed to create document", "account_id", d.AccountID, "error", err)
		return dbError("create document", err)
	}
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	b := r.db.builder()
	out, err := r.list(ctx, b.Select(documentColumns...).From(b.Table(tableDocuments)).Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFoundf("document %s", id)
	}
	return out[0], nil
}

func (r *documentRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	q := r.db.builder().Update(tableDocuments).
		Set("status", string(constants.DocumentProcessing)).
		Add("attempts", 1).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.DocumentPending)),
		))
	n, err := r.db.exec(ctx, q)
	if err != nil {
		return false, dbError("claim document", err)
	}
	return n == 1, nil
}

func (r *documentRepository) Complete(ctx context.Context, out DocumentOutcome) error {
	if !out.Status.Terminal() {
		return common.InvalidInputf("status %s is not terminal", out.Status)
	}
	data, err := jsonArg(out.ExtractedData)
	if err != nil {
		return common.InvalidInputf("extracted_data: %v", err)
	}
	q := r.db.builder().Update(tableDocuments).
		Set("status", string(out.Status)).
		Set("raw_text", strArg(out.RawText)).
		Set("extracted_data", data).
		Set("field_confidences", mustJSON(out.FieldConfidences)).
		Set("flagged_fields", mustJSON(out.FlaggedFields)).
		Set("extraction_confidence", floatArg(out.ExtractionConfidence)).
		Set("processing_error", strArg(out.ProcessingError)).
		Set("error_retriable", out.ErrorRetriable).
		Set("processed_at", out.ProcessedAt.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", out.ID),
			entsql.EQ("status", string(constants.DocumentProcessing)),
		))
	n, err := r.db.exec(ctx, q)
	if err != nil {
		return dbError("complete document", err)
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *documentRepository) Reset(ctx context.Context, id uuid.UUID) (bool, error) {
	q := r.db.builder().Update(tableDocuments).
		Set("status", string(constants.DocumentPending)).
		Set("processing_error", nil).
		Set("error_retriable", false).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.DocumentFailed)),
		))
	n, err := r.db.exec(ctx, q)
	if err != nil {
		return false, dbError("reset document", err)
	}
	return n == 1, nil
}

func (r *documentRepository) Correct(ctx context.Context, c DocumentCorrection) error {
	data, err := jsonArg(c.ExtractedData)
	if err != nil {
		return common.InvalidInputf("extracted_data: %v", err)
	}
	u := r.db.builder().Update(tableDocuments).
		Set("extracted_data", data).
		Set("field_confidences", mustJSON(c.FieldConfidences)).
		Set("flagged_fields", mustJSON(c.FlaggedFields)).
		Set("extraction_confidence", floatArg(c.ExtractionConfidence)).
		Set("updated_at", time.Now().UTC())
	if c.EntityID != nil {
		u.Set("entity_id", *c.EntityID)
	}
	n, err := r.db.exec(ctx, u.Where(entsql.And(
		entsql.EQ("id", c.ID),
		entsql.In("status", string(constants.DocumentProcessed), string(constants.DocumentNeedsReview)),
	)))
	if err != nil {
		return dbError("correct document", err)
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *documentRepository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*entity.Document, error) {
	b := r.db.builder()
	return r.list(ctx, b.Select(documentColumns...).From(b.Table(tableDocuments)).
		Where(entsql.EQ("entity_id", entityID)).OrderBy(entsql.Desc("created_at")))
}

func (r *documentRepository) list(ctx context.Context, q querier) ([]*entity.Document, error) {
	var out []*entity.Document
	err := r.db.query(ctx, q, func(rows *entsql.Rows) error {
		var (
			d                        entity.Document
			entityID                 uuid.NullUUID
			status                   string
			rawText, procErr         sql.NullString
			data, confidences, flags []byte
			overall                  sql.NullFloat64
			processedAt              sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.AccountID, &entityID, &d.DocumentTypeCode, &d.FileName, &d.MimeType,
			&d.StorageKey, &d.SizeBytes, &status, &rawText, &data, &confidences, &flags,
			&overall, &procErr, &d.ErrorRetriable, &d.Attempts, &processedAt,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return err
		}
		d.EntityID = nullUUID(entityID)
		d.Status = constants.DocumentStatus(status)
		d.RawText, d.ProcessingError = nullStr(rawText), nullStr(procErr)
		d.ExtractionConfidence = nullFloat(overall)
		d.ProcessedAt = nullTime(processedAt)
		if err := decodeJSON(data, &d.ExtractedData); err != nil {
			return err
		}
		if err := decodeJSON(confidences, &d.FieldConfidences); err != nil {
			return err
		}
		if err := decodeJSON(flags, &d.FlaggedFields); err != nil {
			return err
		}
		out = append(out, &d)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to query documents", "error", err)
		return nil, dbError("query documents", err)
	}
	return out, nil
}
