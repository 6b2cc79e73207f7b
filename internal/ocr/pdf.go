package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

// inspectPDF parses the document structure and returns its page count.
// The parser panics on some malformed inputs, so panics are reported as errors.
func inspectPDF(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	n := r.NumPage()
	if n <= 0 {
		return 0, errors.New("pdf has no pages")
	}
	return n, nil
}

func (e *Engine) extractPDF(ctx context.Context, data []byte) (string, int, error) {
	declared, err := inspectPDF(data)
	if err != nil {
		return "", 0, corrupt(err)
	}

	tmpDir, err := os.MkdirTemp("", "ct-pp-*")
	if err != nil {
		return "", 0, BackendError(err, false)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "document.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", 0, BackendError(err, false)
	}

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, append(args, in, prefix)...); err != nil {
		return "", 0, toolFailure(ctx, "pdftoppm", err, errb, corrupt)
	}

	// pdftoppm zero-pads page numbers by page count (page-1.png, page-01.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Slice(matches, func(i, j int) bool { return pageNumber(matches[i]) < pageNumber(matches[j]) })
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, corrupt(errors.New("pdftoppm produced no images"))
	}
	if len(matches) != declared {
		e.logger.Debug("ocr.pdf.page_count", "declared", declared, "rendered", len(matches))
	}

	pages := make([]string, 0, len(matches))
	for i, img := range matches {
		txt, err := e.recognize(ctx, Image{Path: img, MimeType: constants.MimePNG}, i+1)
		if err != nil {
			return "", i, err
		}
		pages = append(pages, Normalize(txt))
	}
	return joinPages(pages), len(pages), nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	i := strings.LastIndexByte(base, '-')
	n, err := strconv.Atoi(base[i+1:])
	if err != nil {
		return 0
	}
	return n
}
