package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/database"
	"github.com/iliyamo/taskflow/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema on the configured database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		db, err := database.Open(cfg.DBDriver, cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
			return err
		}
		log.Info("schema up to date", zap.String("driver", cfg.DBDriver))
		return nil
	},
}
