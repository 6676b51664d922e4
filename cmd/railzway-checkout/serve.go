package main

import (
	"github.com/smallbiznis/railzway-checkout/internal/checkout"
	"github.com/smallbiznis/railzway-checkout/internal/eventlog"
	"github.com/smallbiznis/railzway-checkout/internal/ledger"
	"github.com/smallbiznis/railzway-checkout/internal/lock"
	"github.com/smallbiznis/railzway-checkout/internal/migration"
	"github.com/smallbiznis/railzway-checkout/internal/payment"
	"github.com/smallbiznis/railzway-checkout/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	accessservice "github.com/smallbiznis/railzway-checkout/internal/access/service"
	pricingservice "github.com/smallbiznis/railzway-checkout/internal/pricing/service"
)

func serveCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{core()}
			if !skipMigrations {
				opts = append(opts, migration.Module)
			}
			opts = append(opts,
				pricingservice.Module,
				accessservice.Module,
				payment.Module,
				ledger.Module,
				eventlog.Module,
				lock.Module,
				checkout.Module,
				server.Module,
			)

			fx.New(opts...).Run()
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	return cmd
}
