package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm/openai"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/pipeline"
)

type extractReport struct {
	DocumentType      string             `json:"document_type"`
	Fields            map[string]any     `json:"fields"`
	FieldConfidences  map[string]float64 `json:"field_confidences"`
	OverallConfidence float64            `json:"overall_confidence"`
	Flags             map[string]string  `json:"flags,omitempty"`
	Status            string             `json:"status"`
	RuleViolation     string             `json:"rule_violation,omitempty"`
	Attempts          int                `json:"attempts"`
}

// newExtractCommand runs OCR and extraction for one file without touching the database.
func newExtractCommand() *cobra.Command {
	var nicheID, docType string
	var times int
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Dry-run OCR plus LLM extraction against a niche document type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := common.LoadConfig()
			if cfg.LLM.APIKey == "" {
				return errors.New("OPENAI_API_KEY is required")
			}
			if nicheID == "" {
				nicheID = cfg.Niche.DefaultNiche
			}
			store, err := niche.NewStore(cfg.Niche.ConfigPath, nicheID, slog.Default())
			if err != nil {
				return err
			}
			reg, err := store.Lookup(nicheID)
			if err != nil {
				return err
			}
			dt, ok := reg.DocumentType(docType)
			if !ok {
				return fmt.Errorf("document type %q is not defined in niche %s", docType, nicheID)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()
			text, err := runOCR(ctx, cfg.OCR, args[0])
			if err != nil {
				return err
			}
			extractor := llm.NewExtractor(openai.NewClient(openai.ConfigFrom(cfg.LLM), slog.Default()), slog.Default())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for i := 1; i <= times; i++ {
				start := time.Now()
				res, err := extractor.Extract(ctx, text.Text, dt.ExtractionSchema, dt.ExtractionPrompt)
				if err != nil {
					slog.Error("extract.run.error", "iter", i, "error", err)
					continue
				}
				slog.Info("extract.run.ok", "iter", i, "elapsed_ms", time.Since(start).Milliseconds())
				if err := enc.Encode(report(dt, res)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nicheID, "niche", "", "niche id (default DEFAULT_NICHE)")
	cmd.Flags().StringVar(&docType, "type", "", "document type code")
	cmd.Flags().IntVar(&times, "times", 1, "repeat the extraction to compare runs")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func report(dt niche.DocumentTypeDef, res llm.Result) extractReport {
	out := extractReport{
		DocumentType:      dt.Code,
		Fields:            res.Fields,
		FieldConfidences:  res.FieldConfidences,
		OverallConfidence: res.OverallConfidence,
		Flags:             res.Flags,
		Attempts:          res.Attempts,
		Status:            "needs_review",
	}
	if res.OverallConfidence >= dt.Threshold() {
		out.Status = "processed"
	}
	if err := pipeline.Validate(dt, res.Fields, time.Now().UTC()); err != nil {
		out.Status = "failed"
		out.RuleViolation = err.Error()
	}
	return out
}
