package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/api"
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/calendar"
	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/logging"
	redisclient "github.com/hackgods/clinic-scheduling-engine/internal/redis"
	"github.com/hackgods/clinic-scheduling-engine/internal/tasks"
)

var version = "dev"

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

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("timezone", cfg.Location.String()),
		zap.Duration("slot_step", cfg.SlotStep),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 30*time.Second)
	pgPool, err := db.Open(pgCtx, cfg.PostgresDSN, cfg.AutoMigrate, logger)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	redisOpts := redisclient.Options{Addr: cfg.RedisAddr, Username: cfg.RedisUsername, Password: cfg.RedisPassword}
	rdb, err := redisclient.NewRedisClient(rootCtx, redisOpts)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

	taskClient := asynq.NewClient(redisclient.AsynqOpt(redisOpts))
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Warn("error closing task client", zap.Error(err))
		}
	}()

	opts := []appointment.Option{
		appointment.WithLogger(logger),
		appointment.WithSideEffects(tasks.NewDispatcher(taskClient, cfg.TaskMaxRetry, cfg.GoogleCalendarEnabled, logger)),
	}
	if cfg.GoogleCalendarEnabled {
		cal, err := calendar.NewFromCredentials(rootCtx, cfg.GoogleCredentialsFile, cfg.Location, logger)
		if err != nil {
			logger.Fatal("google calendar client error", zap.Error(err))
		}
		opts = append(opts, appointment.WithBusySource(cal))
		logger.Info("external calendar busy feed enabled")
	}

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	svc := appointment.NewService(repo, locker, cfg, opts...)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		PostgresCheck:  pgPool.Ping,
		RedisCheck:     redisclient.Ping(rdb),
		Logger:         logger,
		Env:            cfg.Env,
		Version:        version,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
