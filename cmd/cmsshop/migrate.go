package main

import (
	"github.com/example/cmsshop/pkg/database"
	"github.com/example/cmsshop/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadBase()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.Open(&cfg.Database, logger)
			if err != nil {
				return err
			}
			if err := models.AutoMigrate(db); err != nil {
				return err
			}
			logger.Info("Schema migrated", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
