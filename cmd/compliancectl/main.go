// Command compliancectl holds operator tools: OCR and extraction dry runs, database
// checks and niche validation.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var level, format string
	cmd := &cobra.Command{
		Use:           "compliancectl",
		Short:         "Operator tools for the compliance tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			slog.SetDefault(common.NewLogger(os.Stderr, level, format))
		},
	}
	cmd.PersistentFlags().StringVar(&level, "log-level", envOr("LOG_LEVEL", "info"), "debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&format, "log-format", envOr("LOG_FORMAT", "text"), "text or json")
	cmd.AddCommand(newOCRCommand())
	cmd.AddCommand(newExtractCommand())
	cmd.AddCommand(newDBCommand())
	cmd.AddCommand(newNicheCommand())
	return cmd
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
