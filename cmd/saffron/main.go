package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/saffron-pos/saffron-pos/internal/alerts"
	"github.com/saffron-pos/saffron-pos/internal/app"
	"github.com/saffron-pos/saffron-pos/internal/observability"
	"github.com/saffron-pos/saffron-pos/internal/platform/cache"
	"github.com/saffron-pos/saffron-pos/internal/platform/db"
	"github.com/saffron-pos/saffron-pos/internal/reconciliation"
	"github.com/saffron-pos/saffron-pos/internal/reports"
	"github.com/saffron-pos/saffron-pos/internal/returns"
	"github.com/saffron-pos/saffron-pos/internal/shared"
	"github.com/saffron-pos/saffron-pos/internal/stock"
	"github.com/saffron-pos/saffron-pos/internal/transfers"
	"github.com/saffron-pos/saffron-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(stockRepo, auditLogger, metrics, idempotencyStore)
	stockHandler := stock.NewHandler(logger, stockService)

	transferRepo := transfers.NewRepository(dbpool)
	transferService := transfers.NewService(transferRepo, auditLogger)
	transferHandler := transfers.NewHandler(logger, transferService)

	reconciliationRepo := reconciliation.NewRepository(dbpool)
	reconciliationService := reconciliation.NewService(reconciliationRepo, auditLogger, approvalRecorder)
	reconciliationHandler := reconciliation.NewHandler(logger, reconciliationService)

	returnRepo := returns.NewRepository(dbpool)
	returnService := returns.NewService(returnRepo, auditLogger, approvalRecorder)
	returnHandler := returns.NewHandler(logger, returnService)

	alertRepo := alerts.NewRepository(dbpool)
	alertCache := alerts.NewCache(redisClient, cfg.AlertCacheTTL)
	alertService := alerts.NewService(alertRepo, stockRepo, alertCache, logger)
	alertHandler := alerts.NewHandler(logger, alertService)

	reportService := reports.NewService(stockRepo)
	reportHandler := reports.NewHandler(logger, reportService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		StockHandler:          stockHandler,
		TransferHandler:       transferHandler,
		ReconciliationHandler: reconciliationHandler,
		ReturnHandler:         returnHandler,
		AlertHandler:          alertHandler,
		ReportHandler:         reportHandler,
		JobHandler:            jobHandler,
		Metrics:               metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
