package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/marketguard/internal/config"
	"github.com/BradenHooton/marketguard/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect login guard schema migrations",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "overall migration timeout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd.Context(), timeout, func(ctx context.Context, db *database.DB) error {
					return db.MigrateUp(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print applied and pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd.Context(), timeout, func(ctx context.Context, db *database.DB) error {
					return db.MigrationStatus(ctx)
				})
			},
		},
	)

	return cmd
}

func withDatabase(ctx context.Context, timeout time.Duration, fn func(context.Context, *database.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return errors.New("DB_HOST is not set")
	}

	db, err := database.NewConnection(&cfg.Database, stderrLogger())
	if err != nil {
		return err
	}
	defer db.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(ctx, db)
}
