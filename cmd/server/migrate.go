package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alanyang/portfolio-api/internal/config"
	"github.com/alanyang/portfolio-api/internal/wire"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema to DATABASE_URL and exit",
	// Only DATABASE_URL matters here, whatever STORAGE_DRIVER says.
	PersistentPreRunE: setup((*config.Config).ValidateMigrate),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := wire.Migrate(cmd.Context(), cfg); err != nil {
			return err
		}
		slog.Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
