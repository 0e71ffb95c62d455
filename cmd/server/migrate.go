package main

import (
	"context"
	"fmt"
	"time"

	"enrollment-service/config"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := util.InitLogger(cfg.Server.Env, "enrollment-service"); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer util.SyncLogger()

			db, err := store.NewStore(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			if err := db.Migrate(ctx); err != nil {
				return err
			}
			util.GetLogger().Info("Migrations applied")
			return nil
		},
	}
}
