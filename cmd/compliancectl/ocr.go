package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/ocr"
)

func newOCRCommand() *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "ocr <file>",
		Short: "Run the configured OCR backend on a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			res, err := runOCR(ctx, common.LoadConfig().OCR, args[0])
			if err != nil {
				return err
			}
			slog.Info("ocr.ok",
				"file", args[0],
				"backend", res.Backend,
				"pages", res.Pages,
				"mime", res.MimeType,
				"chars", len(res.Text),
				"elapsed_ms", res.Duration.Milliseconds(),
			)
			if showText {
				fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showText, "text", true, "print the extracted text")
	return cmd
}

func runOCR(ctx context.Context, cfg common.OCRConfig, path string) (ocr.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ocr.Result{}, err
	}
	engine, err := ocr.NewEngine(ocr.ConfigFrom(cfg), slog.Default())
	if err != nil {
		return ocr.Result{}, err
	}
	mime := constants.NormalizeMime(mimetype.Detect(data).String())
	return engine.ExtractText(ctx, data, mime)
}
