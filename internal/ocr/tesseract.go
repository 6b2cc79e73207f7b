package ocr

import "context"

// Tesseract runs the local tesseract binary through a Runner.
type Tesseract struct {
	bin         string
	lang        string
	tessdataDir string
	runner      Runner
}

func NewTesseract(cfg Config, r Runner) *Tesseract {
	return &Tesseract{bin: cfg.Tesseract, lang: cfg.TesseractLang, tessdataDir: cfg.TessdataDir, runner: r}
}

func (t *Tesseract) Name() string { return "local" }

func (t *Tesseract) Recognize(ctx context.Context, img Image) (string, error) {
	// tesseract <file> stdout -l <lang> --oem 3 --psm 6
	args := []string{img.Path, "stdout", "-l", t.lang, "--oem", "3", "--psm", "6"}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.bin, args...)
	if err != nil {
		return "", toolFailure(ctx, "tesseract", err, errb, func(err error) *Error { return BackendError(err, false) })
	}
	return string(out), nil
}
