package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/redis/go-redis/v9"
    "github.com/spf13/cobra"

    "github.com/iliyamo/class-reservation/internal/config"
    "github.com/iliyamo/class-reservation/internal/database"
    "github.com/iliyamo/class-reservation/internal/handler"
    "github.com/iliyamo/class-reservation/internal/metrics"
    "github.com/iliyamo/class-reservation/internal/middleware"
    "github.com/iliyamo/class-reservation/internal/queue"
    "github.com/iliyamo/class-reservation/internal/repository"
    "github.com/iliyamo/class-reservation/internal/router"
    "github.com/iliyamo/class-reservation/internal/service"
)

func newServeCmd() *cobra.Command {
    var migrateUp bool

    cmd := &cobra.Command{
        Use:   "serve",
        Short: "Run the HTTP API",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, logger, err := loadConfig()
            if err != nil {
                return err
            }

            ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
            defer cancel()

            db, dialect, err := database.Open(ctx, dbOptions(cfg))
            if err != nil {
                return err
            }
            defer db.Close()

            if migrateUp {
                if err := repository.Migrate(ctx, db, dialect); err != nil {
                    return err
                }
            }

            sinks := queue.Fanout{queue.LogRecorder{Logger: logger}}
            if cfg.RabbitMQURL != "" {
                pub := queue.NewPublisher(cfg.RabbitMQURL, cfg.EventQueue, logger)
                defer pub.Close()
                sinks = append(sinks, pub)
            } else {
                logger.Info("RABBITMQ_URL not set; reservation events are only logged")
            }

            policy := service.Policy{
                CancelLeadTime:     cfg.CancelLeadTime,
                CheckInOpensBefore: cfg.CheckInOpensBefore,
                CheckInClosesAfter: cfg.CheckInClosesAfter,
            }
            svc := service.NewReservationService(db, dialect, policy,
                service.WithRecorder(sinks),
                service.WithMetrics(metrics.MustNewMetrics(prometheus.DefaultRegisterer)),
                service.WithLogger(logger),
            )

            var rdb *redis.Client
            if client, err := config.NewRedisClient(ctx, config.LoadRedisConfig()); err != nil {
                logger.Warn("redis unavailable; rate limiting is per process and caching is off", "error", err)
            } else {
                rdb = client
                defer rdb.Close()
            }

            e := echo.New()
            e.HideBanner = true
            e.HidePort = true
            e.Use(echomw.RequestID(), echomw.Recover(), middleware.RequestLogger(logger))

            limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
            cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
            h := handler.NewReservationHandler(svc)

            router.RegisterRoutes(e, db, prometheus.DefaultGatherer)
            router.RegisterPublic(e, h, cache, limiter)
            router.RegisterCustomer(e, h, cfg.JWTSecret, limiter)
            router.RegisterStaff(e, h, cfg.JWTSecret, limiter)

            addr := ":" + cfg.Port
            errCh := make(chan error, 1)
            go func() {
                logger.Info("listening", "addr", addr, "env", cfg.Env, "db_driver", cfg.DBDriver)
                if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
                    errCh <- err
                }
                close(errCh)
            }()

            select {
            case err := <-errCh:
                return err
            case <-ctx.Done():
            }

            logger.Info("shutting down")
            shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
            defer stop()
            return e.Shutdown(shutdownCtx)
        },
    }

    cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
    return cmd
}
