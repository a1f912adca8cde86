package main

import (
    "context"
    "errors"
    "fmt"
    "os"
    "os/signal"
    "syscall"

    "github.com/spf13/cobra"

    "github.com/iliyamo/class-reservation/internal/queue"
)

func newConsumeCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "consume",
        Short: "Append reservation events from RabbitMQ to the reservation log",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, logger, err := loadConfig()
            if err != nil {
                return err
            }
            if cfg.RabbitMQURL == "" {
                return fmt.Errorf("RABBITMQ_URL is required")
            }

            ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
            defer cancel()

            c := &queue.Consumer{
                URL:    cfg.RabbitMQURL,
                Queue:  cfg.EventQueue,
                LogDir: cfg.EventLogDir,
                Logger: logger,
            }
            logger.Info("consuming reservation events", "queue", cfg.EventQueue, "log_dir", cfg.EventLogDir)
            if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
                return err
            }
            return nil
        },
    }
}
