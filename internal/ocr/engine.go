// Package ocr turns uploaded PDFs and images into plain text.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sethvargo/go-retry"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/metrics"
)

type Config struct {
	Backend       string // local | cloud-vision
	Pdftoppm      string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	HeicConverter string // heif-convert | magick | sips

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI for PDFs, default 300
	MaxPages      int // 0 = no limit

	PageTimeout time.Duration // per page recognizer call, default 30s
	RetryDelay  time.Duration // wait before the single retry, default 500ms

	VisionAPIKey  string
	VisionBaseURL string
}

// ConfigFrom maps the process configuration onto the engine config.
func ConfigFrom(c common.OCRConfig) Config {
	return Config{
		Backend:       c.Backend,
		Pdftoppm:      c.PDFToPPMPath,
		Tesseract:     c.TesseractPath,
		HeicConverter: c.HeicConverter,
		TesseractLang: c.Lang,
		TessdataDir:   c.TessdataDir,
		DPI:           c.DPI,
		MaxPages:      c.MaxPages,
		PageTimeout:   c.PageTimeout,
		VisionAPIKey:  c.GoogleVisionAPIKey,
		VisionBaseURL: c.GoogleVisionBaseURL,
	}
}

type Result struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE
	MimeType   string
	Backend    string
	Duration   time.Duration
}

// Image is one page on local disk handed to a Backend.
type Image struct {
	Path     string
	MimeType string
}

// Backend recognizes the text of a single image.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, img Image) (string, error)
}

type Engine struct {
	cfg     Config
	runner  Runner
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

// WithRunner replaces the exec runner used for pdftoppm, tesseract and HEIC conversion.
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithBackend overrides the backend chosen from Config.Backend.
func WithBackend(b Backend) Option {
	return func(e *Engine) { e.backend = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	e := &Engine{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.backend == nil {
		switch cfg.Backend {
		case "", "local":
			e.backend = NewTesseract(cfg, e.runner)
		case "cloud-vision":
			e.backend = NewVision(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.PageTimeout)
		default:
			return nil, fmt.Errorf("unknown ocr backend %q", cfg.Backend)
		}
	}
	return e, nil
}

func (e *Engine) Backend() string { return e.backend.Name() }

// ExtractText recognizes data. An empty mimeType is sniffed from the bytes.
// PDF pages are joined with "--- Page N ---" markers.
func (e *Engine) ExtractText(ctx context.Context, data []byte, mimeType string) (Result, error) {
	start := time.Now()
	if len(data) == 0 {
		return Result{}, corrupt(fmt.Errorf("empty file"))
	}
	mimeType = constants.NormalizeMime(mimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = constants.NormalizeMime(mimetype.Detect(data).String())
	}
	res := Result{MimeType: mimeType, Backend: e.backend.Name(), SourceType: constants.MapMimeToFormat(mimeType)}
	log := e.logger.With("mime_type", mimeType, "backend", res.Backend, "bytes", len(data))
	log.Debug("ocr.extract.start")

	var err error
	switch res.SourceType {
	case constants.PDF:
		res.Text, res.Pages, err = e.extractPDF(ctx, data)
	case constants.IMAGE:
		res.Text, err = e.extractImage(ctx, data, mimeType)
		res.Pages = 1
	default:
		err = unsupported("unsupported mime type %q", mimeType)
	}
	res.Duration = time.Since(start)
	e.metrics.ObserveOCR(res.Backend, start)
	if err != nil {
		oe := classify(ctx, err)
		log.Error("ocr.extract.error", "kind", oe.Kind, "retriable", oe.Retriable, "error", oe.Err, "elapsed_ms", res.Duration.Milliseconds())
		return res, oe
	}
	log.Info("ocr.extract.ok", "pages", res.Pages, "chars", len(res.Text), "elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}

func (e *Engine) extractImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	dir, err := os.MkdirTemp("", "ct-ocr-*")
	if err != nil {
		return "", BackendError(err, false)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	in := filepath.Join(dir, "image"+constants.ExtForMime(mimeType))
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", BackendError(err, false)
	}
	img := Image{Path: in, MimeType: mimeType}
	if constants.IsHEICMime(mimeType) {
		out, err := convertHEICtoPNG(ctx, e.runner, e.cfg.HeicConverter, in, dir)
		if err != nil {
			return "", err
		}
		img = Image{Path: out, MimeType: constants.MimePNG}
	}
	txt, err := e.recognize(ctx, img, 1)
	if err != nil {
		return "", err
	}
	return Normalize(txt), nil
}

// recognize runs one backend call under the page timeout with a single retry for retriable failures.
func (e *Engine) recognize(ctx context.Context, img Image, page int) (string, error) {
	var (
		text     string
		attempts int
	)
	backoff := retry.WithMaxRetries(1, retry.NewConstant(e.cfg.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		pctx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
		defer cancel()
		t, err := e.backend.Recognize(pctx, img)
		if err == nil {
			text = t
			return nil
		}
		oe := classify(pctx, err)
		e.logger.Warn("ocr.page.error", "page", page, "attempt", attempts, "kind", oe.Kind, "retriable", oe.Retriable, "error", oe.Err)
		if oe.Retriable {
			return retry.RetryableError(oe)
		}
		return oe
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func joinPages(pages []string) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s", i+1, p)
	}
	return b.String()
}
