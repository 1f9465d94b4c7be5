package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/calendar"
	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/logging"
	"github.com/hackgods/clinic-scheduling-engine/internal/notification"
	redisclient "github.com/hackgods/clinic-scheduling-engine/internal/redis"
	"github.com/hackgods/clinic-scheduling-engine/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("side-effect-worker starting up",
		zap.String("env", cfg.Env),
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Bool("calendar_sync", cfg.GoogleCalendarEnabled),
	)

	ctx := context.Background()

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	var cal tasks.CalendarSyncer
	if cfg.GoogleCalendarEnabled {
		client, err := calendar.NewFromCredentials(ctx, cfg.GoogleCredentialsFile, cfg.Location, logger)
		if err != nil {
			logger.Fatal("google calendar client error", zap.Error(err))
		}
		cal = client
	}

	var notifier notification.Notifier = notification.NewLogNotifier(logger)
	if cfg.NotifyWebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.NotifyWebhookURL, &http.Client{Timeout: 10 * time.Second})
	}

	handlers := tasks.NewHandlers(appointment.NewPgRepository(pgPool), cal, notifier, cfg.Location, logger)

	srv := asynq.NewServer(
		redisclient.AsynqOpt(redisclient.Options{Addr: cfg.RedisAddr, Username: cfg.RedisUsername, Password: cfg.RedisPassword}),
		asynq.Config{
			Concurrency:     cfg.WorkerConcurrency,
			Logger:          logger.Sugar(),
			ShutdownTimeout: cfg.ShutdownTimeout,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn("side-effect task failed",
					zap.String("type", task.Type()),
					zap.Int("retry", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	// Run blocks until SIGTERM/SIGINT and drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
	logger.Info("side-effect-worker stopped")
}
