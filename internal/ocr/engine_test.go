package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// minimalPDF builds a structurally valid PDF with the given number of empty pages.
func minimalPDF(pages int) []byte {
	var (
		b       bytes.Buffer
		offsets []int
	)
	b.WriteString("%PDF-1.4\n")
	obj := func(body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return b.Bytes()
}

type call struct {
	name string
	args []string
}

// stubRunner fakes pdftoppm by writing page files and answers tesseract through recognize.
type stubRunner struct {
	mu        sync.Mutex
	calls     []call
	pages     int
	recognize func(ctx context.Context, attempt int, path string) ([]byte, error)
	attempts  int
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{name: name, args: args})
	s.mu.Unlock()

	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= s.pages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), pngMagic, 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		s.mu.Lock()
		s.attempts++
		n := s.attempts
		s.mu.Unlock()
		if s.recognize != nil {
			out, err := s.recognize(ctx, n, args[0])
			return out, []byte("stderr"), err
		}
		return []byte("text of " + filepath.Base(args[0]) + "\n"), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

func (s *stubRunner) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	e, err := NewEngine(cfg, testLogger(), opts...)
	require.NoError(t, err)
	return e
}

func TestExtractText_PDFJoinsPages(t *testing.T) {
	r := &stubRunner{pages: 2}
	e := newTestEngine(t, Config{}, WithRunner(r), WithBackend(NewTesseract(Config{Tesseract: "tesseract", TesseractLang: "eng"}, r)))

	res, err := e.ExtractText(context.Background(), minimalPDF(2), constants.MimePDF)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, constants.PDF, res.SourceType)
	assert.Equal(t, "--- Page 1 ---\ntext of page-1.png\n\n--- Page 2 ---\ntext of page-2.png", res.Text)
	assert.Equal(t, 1, r.count("pdftoppm"))
	assert.Equal(t, 2, r.count("tesseract"))
}

func TestExtractText_SniffsEmptyMime(t *testing.T) {
	r := &stubRunner{}
	e := newTestEngine(t, Config{}, WithRunner(r), WithBackend(NewTesseract(Config{Tesseract: "tesseract"}, r)))

	res, err := e.ExtractText(context.Background(), pngMagic, "")
	require.NoError(t, err)
	assert.Equal(t, constants.MimePNG, res.MimeType)
	assert.Equal(t, constants.IMAGE, res.SourceType)
	assert.Equal(t, "text of image.png", res.Text)
}

func TestExtractText_Errors(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		mime      string
		kind      Kind
		retriable bool
	}{
		{name: "unsupported", data: []byte("hello"), mime: "text/plain", kind: KindUnsupported},
		{name: "corrupt pdf", data: []byte("%PDF-1.4 not really a pdf"), mime: constants.MimePDF, kind: KindCorrupt},
		{name: "empty", data: nil, mime: constants.MimePNG, kind: KindCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &stubRunner{pages: 1}
			e := newTestEngine(t, Config{}, WithRunner(r), WithBackend(NewTesseract(Config{Tesseract: "tesseract"}, r)))
			_, err := e.ExtractText(context.Background(), tt.data, tt.mime)
			var oe *Error
			require.ErrorAs(t, err, &oe)
			assert.Equal(t, tt.kind, oe.Kind)
			assert.Equal(t, tt.retriable, oe.Retriable)
			assert.Zero(t, r.count("tesseract"))
		})
	}
}

func TestExtractText_RetriesTimeoutOnce(t *testing.T) {
	r := &stubRunner{recognize: func(ctx context.Context, attempt int, path string) ([]byte, error) {
		if attempt == 1 {
			<-ctx.Done()
			return nil, errors.New("signal: killed")
		}
		return []byte("ACORD 25"), nil
	}}
	e := newTestEngine(t, Config{PageTimeout: 20 * time.Millisecond}, WithRunner(r), WithBackend(NewTesseract(Config{Tesseract: "tesseract"}, r)))

	res, err := e.ExtractText(context.Background(), pngMagic, constants.MimePNG)
	require.NoError(t, err)
	assert.Equal(t, "ACORD 25", res.Text)
	assert.Equal(t, 2, r.count("tesseract"))
}

func TestExtractText_TimeoutAfterRetryIsRetriable(t *testing.T) {
	r := &stubRunner{recognize: func(ctx context.Context, _ int, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, errors.New("signal: killed")
	}}
	e := newTestEngine(t, Config{PageTimeout: 10 * time.Millisecond}, WithRunner(r), WithBackend(NewTesseract(Config{Tesseract: "tesseract"}, r)))

	_, err := e.ExtractText(context.Background(), pngMagic, constants.MimePNG)
	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, KindTimeout, oe.Kind)
	assert.True(t, IsRetriable(err))
	assert.Equal(t, 2, r.count("tesseract"))
}

func TestExtractText_BackendFailureNotRetried(t *testing.T) {
	r := &stubRunner{recognize: func(context.Context, int, string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}}
	e := newTestEngine(t, Config{}, WithRunner(r), WithBackend(NewTesseract(Config{Tesseract: "tesseract"}, r)))

	_, err := e.ExtractText(context.Background(), pngMagic, constants.MimePNG)
	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, KindBackend, oe.Kind)
	assert.False(t, oe.Retriable)
	assert.Equal(t, 1, r.count("tesseract"))
}

func TestVision(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantText  string
		wantCalls int32
		retriable bool
	}{
		{
			name:      "ok",
			status:    http.StatusOK,
			body:      `{"responses":[{"fullTextAnnotation":{"text":"CERTIFICATE OF LIABILITY INSURANCE"}}]}`,
			wantText:  "CERTIFICATE OF LIABILITY INSURANCE",
			wantCalls: 1,
		},
		{name: "server error retried", status: http.StatusServiceUnavailable, body: `{}`, wantCalls: 2, retriable: true},
		{name: "rate limited retried", status: http.StatusTooManyRequests, body: `{}`, wantCalls: 2, retriable: true},
		{name: "bad request not retried", status: http.StatusBadRequest, body: `{"error":{"message":"bad image"}}`, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				assert.Equal(t, "/v1/images:annotate", r.URL.Path)
				assert.Equal(t, "test-key", r.URL.Query().Get("key"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := newTestEngine(t, Config{Backend: "cloud-vision", VisionBaseURL: srv.URL, VisionAPIKey: "test-key", PageTimeout: time.Second})
			assert.Equal(t, "cloud-vision", e.Backend())

			res, err := e.ExtractText(context.Background(), pngMagic, constants.MimePNG)
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantText != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantText, res.Text)
				return
			}
			var oe *Error
			require.ErrorAs(t, err, &oe)
			assert.Equal(t, KindBackend, oe.Kind)
			assert.Equal(t, tt.retriable, oe.Retriable)
		})
	}
}

func TestNormalize(t *testing.T) {
	in := "POLICY\tNUMBER:  GL-01\r\n\r\n\r\n\r\n-----\nEXP  01/02/2026   \f"
	assert.Equal(t, "POLICY NUMBER: GL-01\n\nEXP 01/02/2026", Normalize(in))
}

func TestToolFailure(t *testing.T) {
	ctx := context.Background()

	oe := toolFailure(ctx, "pdftoppm", exec.ErrNotFound, nil, corrupt)
	assert.Equal(t, KindBackend, oe.Kind)
	assert.False(t, oe.Retriable)

	oe = toolFailure(ctx, "pdftoppm", errors.New("exit status 1"), []byte("Syntax Error: bad xref\n"), corrupt)
	assert.Equal(t, KindCorrupt, oe.Kind)
	assert.Contains(t, oe.Error(), "bad xref")

	cancelled, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	<-cancelled.Done()
	oe = toolFailure(cancelled, "tesseract", errors.New("signal: killed"), nil, corrupt)
	assert.Equal(t, KindTimeout, oe.Kind)
	assert.True(t, oe.Retriable)
}
