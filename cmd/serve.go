package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the distiller until interrupted",
		Long: `Serves /healthz, /readyz and /metrics, consumes scrapes from the
configured Pub/Sub subscription and runs the raw purge and cache janitor.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run distiller: %w", err)
			}
			return nil
		},
	}
}
