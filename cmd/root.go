// Package cmd defines and implements the CLI commands for the rentradar
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rentradar/rentradar/internal/app"

	// Register the listing sources.
	_ "github.com/rentradar/rentradar/internal/scraper/hollandrijnland"
	_ "github.com/rentradar/rentradar/internal/scraper/vbt"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can replace
// it with a fake.
var newApp = func(ctx context.Context, cfgPath string) (*app.App, error) {
	return app.New(ctx, cfgPath)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rentradar",
		Short: "Rental listing scanner for Dutch housing portals.",
		Long: `rentradar scans Dutch rental portals for new listings, stores them in
Postgres and notifies subscribers about fresh matches. It also serves the
HTTP API used by the Telegram bot pipeline.`,

		// Build and inject the application before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses built-in defaults and RENTRADAR_* env vars)")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newInitDBCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
