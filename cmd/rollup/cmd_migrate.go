package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/rollup-backend/internal/app"
	appdb "github.com/yungbote/rollup-backend/internal/data/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			cfg, err := app.LoadConfig(log)
			if err != nil {
				return err
			}
			db, err := appdb.Open(cfg.DB, log)
			if err != nil {
				return err
			}
			defer appdb.Close(db)
			if err := appdb.AutoMigrateAll(db); err != nil {
				return err
			}
			log.Info("Migrations applied", "driver", cfg.DB.Driver)
			return nil
		},
	}
}
