package main

import (
	"context"
	"fmt"

	"upets/platform-service/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return runMigrations(cmd.Context(), pool, a.log)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			version, err := postgres.MigrationStatus(cmd.Context(), pool)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	})
	return cmd
}

func openPool(ctx context.Context) (*app, *pgxpool.Pool, error) {
	a, err := newApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	pool, err := a.requirePool()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, pool, nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) error {
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("migrations applied")
	return nil
}
