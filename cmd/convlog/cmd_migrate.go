package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rhuss/convlog/pkg/storage/postgres"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		pg, ok := a.store.(*postgres.Store)
		if !ok {
			return fmt.Errorf("migrate needs storage.type postgres, got %q", a.cfg.Storage.Type)
		}
		if err := pg.Migrate(cmd.Context()); err != nil {
			return err
		}
		slog.Info("migrations applied")
		return nil
	},
}
