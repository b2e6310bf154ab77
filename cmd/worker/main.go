package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/saffron-pos/saffron-pos/internal/alerts"
	"github.com/saffron-pos/saffron-pos/internal/app"
	jobmetrics "github.com/saffron-pos/saffron-pos/internal/jobs"
	"github.com/saffron-pos/saffron-pos/internal/platform/cache"
	"github.com/saffron-pos/saffron-pos/internal/platform/db"
	"github.com/saffron-pos/saffron-pos/internal/stock"
	"github.com/saffron-pos/saffron-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	stockRepo := stock.NewRepository(pool)
	alertRepo := alerts.NewRepository(pool)
	alertCache := alerts.NewCache(redisClient, cfg.AlertCacheTTL)
	alertService := alerts.NewService(alertRepo, stockRepo, alertCache, logger)

	scanTask, err := jobs.NewAlertScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build alert scan task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask(time.Now().UTC())
	if err != nil {
		logger.Error("build ledger integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAlertScan, Handler: jobs.NewAlertScanHandler(alertService, logger, metrics)},
			{Type: jobs.TaskLedgerIntegrity, Handler: jobs.NewLedgerIntegrityHandler(stockRepo, logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
