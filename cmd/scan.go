package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentradar/rentradar/internal/scanner"
)

// newScanCmd creates the 'scan' subcommand: one full scrape cycle across the
// selected sources and cities.
func newScanCmd() *cobra.Command {
	var (
		sources  []string
		cities   []string
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the configured portals for listings",
		Long: `Runs one scan cycle: paginated city searches against each selected
source, detail enrichment, dedup and persistence. New listings are published
to the notification topic when one is configured.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				sources = appInstance.Cfg.Scan.Sources
			}
			if len(cities) == 0 {
				cities = appInstance.Cfg.Scan.Cities
			}

			run, err := appInstance.Scanner.Run(cmd.Context(), scanner.Options{
				Sources:  sources,
				Cities:   cities,
				MaxPages: maxPages,
			})
			if err != nil {
				return fmt.Errorf("run scan: %w", err)
			}

			appInstance.Logger.Info("scan command finished",
				zap.Int64("run_id", run.ID),
				zap.String("status", run.Status),
				zap.Int("found", run.Found),
				zap.Int("new", run.New))
			fmt.Fprintf(cmd.OutOrStdout(),
				"scan %d %s: %d found, %d new, %d updated, %d failed\n",
				run.ID, run.Status, run.Found, run.New, run.Updated, run.Failed)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sources, "sources", nil, "comma-separated source names (default from config)")
	cmd.Flags().StringSliceVar(&cities, "cities", nil, "comma-separated city names (default from config)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum search pages per source and city (default from config)")

	return cmd
}
