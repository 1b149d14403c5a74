// Package cmd defines and implements the CLI commands for the distiller executable.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/lead-signal-distiller/internal/config"
	"github.com/JakeFAU/lead-signal-distiller/internal/server"
)

// App is what the subcommands need from the application. Tests inject fakes.
type App interface {
	Run(ctx context.Context) error
	Purge(ctx context.Context) (int, error)
	Handler() http.Handler
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

type appKeyType struct{}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "distiller",
		Short: "Distills scraped web content into durable lead signals.",
		Long: `distiller turns raw scrapes about business records into compact,
scored lead signals using per-organization signal catalogs. Raw scrapes are
kept for a bounded retention window; signals are kept forever.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, appInstance))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); DISTILLER_* env vars override it")

	cmd.AddCommand(newServeCmd(), newPurgeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKeyType{}).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
