package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/railzway-checkout/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func migrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				core(),
				migration.Module,
			)
			if err := app.Err(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return app.Stop(ctx)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "maximum time to connect and migrate")
	return cmd
}
