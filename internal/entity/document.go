package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

// Document is an uploaded file plus its processing state.
type Document struct {
	ID                   uuid.UUID                `json:"id"`
	AccountID            uuid.UUID                `json:"account_id"`
	EntityID             *uuid.UUID               `json:"entity_id,omitempty"`
	DocumentTypeCode     string                   `json:"document_type"`
	FileName             string                   `json:"file_name"`
	MimeType             string                   `json:"mime_type"`
	StorageKey           string                   `json:"-"`
	SizeBytes            int64                    `json:"size_bytes"`
	Status               constants.DocumentStatus `json:"status"`
	RawText              *string                  `json:"raw_text,omitempty"`
	ExtractedData        map[string]any           `json:"extracted_data,omitempty"`
	FieldConfidences     map[string]float64       `json:"field_confidences,omitempty"`
	FlaggedFields        map[string]string        `json:"flagged_fields,omitempty"`
	ExtractionConfidence *float64                 `json:"extraction_confidence"`
	ProcessingError      *string                  `json:"processing_error,omitempty"`
	ErrorRetriable       bool                     `json:"error_retriable"`
	Attempts             int                      `json:"attempts"`
	ProcessedAt          *time.Time               `json:"processed_at,omitempty"`
	CreatedAt            time.Time                `json:"created_at"`
	UpdatedAt            time.Time                `json:"updated_at"`
}
