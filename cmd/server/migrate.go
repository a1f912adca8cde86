package main

import (
    "github.com/spf13/cobra"

    "github.com/iliyamo/class-reservation/internal/database"
    "github.com/iliyamo/class-reservation/internal/repository"
)

func newMigrateCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "migrate",
        Short: "Create or update the database schema",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, logger, err := loadConfig()
            if err != nil {
                return err
            }
            ctx := cmd.Context()
            db, dialect, err := database.Open(ctx, dbOptions(cfg))
            if err != nil {
                return err
            }
            defer db.Close()

            if err := repository.Migrate(ctx, db, dialect); err != nil {
                return err
            }
            logger.Info("schema up to date", "db_driver", cfg.DBDriver)
            return nil
        },
    }
}
