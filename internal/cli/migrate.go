package cli

import (
	"fmt"

	"dwiju-assistant/backend/internal/store"
	"dwiju-assistant/backend/pkg/config"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the Postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := config.NewDB(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		if err := store.AutoMigrate(cmd.Context(), db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema is up to date", "database", cfg.Database.Name)
		return nil
	},
}
