package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newInitDBCmd creates the 'init-db' subcommand: wait for Postgres, install
// extensions and apply the schema.
func newInitDBCmd() *cobra.Command {
	var withTelegram bool

	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Initialize the database schema",
		Long: `Waits for Postgres to accept connections, installs the required
extensions (postgis, vector, fuzzystrmatch) and applies the listing schema.
Every step is idempotent, so the command is safe to run on every container
start. With --telegram the Telegram bot tables are created as well.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger
			m := appInstance.Migrator

			readyCtx, cancel := context.WithTimeout(cmd.Context(), appInstance.Cfg.ReadyTimeout())
			defer cancel()
			if err := m.WaitForReady(readyCtx, appInstance.Cfg.ReadyInterval()); err != nil {
				return err
			}

			vectorAvailable, err := m.CreateExtensions(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.Migrate(cmd.Context(), vectorAvailable); err != nil {
				return err
			}
			if withTelegram {
				if err := m.MigrateTelegram(cmd.Context()); err != nil {
					return err
				}
			}

			tables, err := m.ListTables(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("database initialized",
				zap.Bool("telegram", withTelegram),
				zap.Strings("tables", tables))
			fmt.Fprintf(cmd.OutOrStdout(), "tables: %s\n", strings.Join(tables, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&withTelegram, "telegram", false, "also create the Telegram bot tables")

	return cmd
}
