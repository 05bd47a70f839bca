package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stocktally/stocktally/internal/app"
	"github.com/stocktally/stocktally/internal/catalog"
	"github.com/stocktally/stocktally/internal/imports"
	jobmetrics "github.com/stocktally/stocktally/internal/jobs"
	"github.com/stocktally/stocktally/internal/platform/cache"
	"github.com/stocktally/stocktally/internal/platform/db"
	"github.com/stocktally/stocktally/internal/reconcile"
	"github.com/stocktally/stocktally/internal/shared"
	"github.com/stocktally/stocktally/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(pool)
	resultStore := reconcile.NewResultStore(redisClient, cfg.ResultTTL)
	applier := reconcile.NewApplier(catalogRepo)

	importsService := imports.NewService(imports.ServiceParams{
		Runs:           imports.NewRepository(pool),
		Results:        resultStore,
		Payloads:       imports.NewPayloadStore(redisClient, cfg.ResultTTL),
		Catalog:        catalogRepo,
		Applier:        applier,
		Idempotency:    idempotencyStore,
		Audit:          auditLogger,
		AsyncThreshold: cfg.ImportAsyncThreshold,
	})

	metrics := jobmetrics.NewMetrics(nil)
	parseJob := jobs.NewImportParseJob(importsService, logger, metrics)
	cleanupJob := jobs.NewMaintenanceCleanupJob(idempotencyStore, logger, metrics)

	cleanupTask, err := jobs.NewMaintenanceCleanupTask(48 * time.Hour)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskImportParse, Handler: parseJob.Handle},
			{Type: jobs.TaskMaintenanceCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
