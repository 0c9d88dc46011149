package main

import (
	"context"
	"database/sql"
	"fmt"

	"BasketLedger/internal/observability"
	"BasketLedger/internal/persistence"
	"BasketLedger/internal/projection"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.Migrator) error {
			if err := m.Up(ctx); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			logger := observability.NewLogger("migrate")
			logger.Info().Msg("all migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last applied migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.Migrator) error {
			if err := m.Down(ctx); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			logger := observability.NewLogger("migrate")
			logger.Info().Msg("last migration rolled back")
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations not yet applied",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.Migrator) error {
			pending, err := m.Pending(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "up to date")
				return nil
			}
			for _, f := range pending {
				fmt.Fprintln(cmd.OutOrStdout(), "pending:", f)
			}
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withMigrator(ctx context.Context, fn func(context.Context, *persistence.Migrator) error) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	return fn(ctx, persistence.NewMigrator(db, cfg.Migrations.Dir))
}

var rebuildProjectionsCmd = &cobra.Command{
	Use:   "rebuild-projections",
	Short: "Discard and rebuild the balance projection from the journal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()

		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		head, err := projection.NewWorker(db, cfg.Projection.Interval, cfg.Projection.BatchSize).Rebuild(cmd.Context())
		if err != nil {
			return fmt.Errorf("rebuild projections: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "projected through sequence %d\n", head)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildProjectionsCmd)
}
