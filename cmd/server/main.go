package main // Entry point package

import (
    "fmt"
    "log/slog"
    "os"

    "github.com/spf13/cobra"

    "github.com/iliyamo/class-reservation/internal/config"
    "github.com/iliyamo/class-reservation/internal/database"
    "github.com/iliyamo/class-reservation/internal/logging"
)

func main() {
    if err := newRootCmd().Execute(); err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}

func newRootCmd() *cobra.Command {
    var envFile string

    root := &cobra.Command{
        Use:           "class-reservation",
        Short:         "Class reservation engine: bookings, waitlists and prepaid balances",
        SilenceUsage:  true,
        SilenceErrors: true,
        PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
            if envFile == "" {
                return config.LoadDotEnv()
            }
            return config.LoadDotEnv(envFile)
        },
    }
    root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")

    root.AddCommand(newServeCmd())
    root.AddCommand(newMigrateCmd())
    root.AddCommand(newConsumeCmd())
    root.AddCommand(newTokenCmd())
    root.AddCommand(newSeedCmd())
    return root
}

// loadConfig loads the environment configuration and the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
    cfg, err := config.Load()
    if err != nil {
        return config.Config{}, nil, fmt.Errorf("config: %w", err)
    }
    logger := logging.New(os.Stdout, cfg.Env)
    slog.SetDefault(logger)
    return cfg, logger, nil
}

func dbOptions(cfg config.Config) database.Options {
    return database.Options{
        Driver:     cfg.DBDriver,
        User:       cfg.DBUser,
        Pass:       cfg.DBPass,
        Host:       cfg.DBHost,
        Port:       cfg.DBPort,
        Name:       cfg.DBName,
        SQLitePath: cfg.SQLitePath,
    }
}
