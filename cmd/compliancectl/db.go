package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
)

func newDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database checks and migrations",
	}
	cmd.AddCommand(newDBHealthCommand(), newDBMigrateCommand())
	return cmd
}

func newDBHealthCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Ping the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *repository.DB) error {
				start := time.Now()
				if err := db.HealthCheck(ctx, timeout); err != nil {
					return fmt.Errorf("health check: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "database ok (%d ms)\n", time.Since(start).Milliseconds())
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "ping timeout")
	return cmd
}

func newDBMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *repository.DB) error {
				return db.Migrate(ctx)
			})
		},
	}
}

func withDB(ctx context.Context, fn func(context.Context, *repository.DB) error) error {
	cfg := common.LoadConfig().Database
	if cfg.DSN == "" && cfg.Driver != "sqlite" {
		return errors.New("DB_URL is required")
	}
	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Driver,
		DSN:              cfg.DSN,
		MaxConns:         2,
		MinConns:         0,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}
