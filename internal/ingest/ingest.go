// Package ingest imports documents from local directories into the processing pipeline.
package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/pipeline"
)

// defaultExts are matched when no extension filter is configured (lowercase, without '.').
var defaultExts = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"heic": {},
	"heif": {},
}

// Uploader stores a document. *pipeline.Service satisfies it.
type Uploader interface {
	Upload(ctx context.Context, in pipeline.UploadInput) (*entity.Document, error)
}

// Processor runs a stored document through OCR and extraction.
type Processor interface {
	Process(ctx context.Context, id uuid.UUID) (*entity.Document, error)
}

// Target says where imported files land.
type Target struct {
	AccountID        uuid.UUID
	EntityID         *uuid.UUID
	DocumentTypeCode string
}

// Result is the per-file import outcome.
type Result struct {
	SourcePath string
	DocumentID uuid.UUID
	Status     string
	Err        string
}

// DirStats summarizes a directory import.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

type Importer struct {
	uploader  Uploader
	processor Processor
	exts      map[string]struct{}
	logger    *slog.Logger
}

type Option func(*Importer)

// WithProcessor processes each file right after upload.
func WithProcessor(p Processor) Option { return func(i *Importer) { i.processor = p } }

// WithExtensions replaces the default extension filter.
func WithExtensions(exts ...string) Option {
	return func(i *Importer) {
		set := map[string]struct{}{}
		for _, e := range exts {
			e = normalizeExt(e)
			if e != "" {
				set[e] = struct{}{}
			}
		}
		if len(set) > 0 {
			i.exts = set
		}
	}
}

func NewImporter(uploader Uploader, logger *slog.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Importer{uploader: uploader, exts: defaultExts, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Allowed reports whether path has an extension the importer picks up.
func (i *Importer) Allowed(path string) bool {
	_, ok := i.exts[normalizeExt(filepath.Ext(path))]
	return ok
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func elapsed(start time.Time) int64 { return time.Since(start).Milliseconds() }

func uploadInput(t Target, path string, data []byte) pipeline.UploadInput {
	return pipeline.UploadInput{
		AccountID:        t.AccountID,
		EntityID:         t.EntityID,
		DocumentTypeCode: t.DocumentTypeCode,
		FileName:         filepath.Base(path),
		Data:             data,
	}
}
