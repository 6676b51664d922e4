package main

import (
	"github.com/smallbiznis/railzway-checkout/internal/outbox"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Forward outbox events to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(
				core(),
				outbox.Module,
			).Run()
			return nil
		},
	}
}
