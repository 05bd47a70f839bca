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

	"github.com/stocktally/stocktally/internal/app"
	"github.com/stocktally/stocktally/internal/catalog"
	"github.com/stocktally/stocktally/internal/countsync"
	"github.com/stocktally/stocktally/internal/imports"
	"github.com/stocktally/stocktally/internal/observability"
	"github.com/stocktally/stocktally/internal/platform/cache"
	"github.com/stocktally/stocktally/internal/platform/db"
	"github.com/stocktally/stocktally/internal/reconcile"
	"github.com/stocktally/stocktally/internal/shared"
	"github.com/stocktally/stocktally/jobs"
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

	asynqClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditLogger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	resultStore := reconcile.NewResultStore(redisClient, cfg.ResultTTL)
	applier := reconcile.NewApplier(catalogRepo)

	importsRepo := imports.NewRepository(pool)
	importsService := imports.NewService(imports.ServiceParams{
		Runs:           importsRepo,
		Results:        resultStore,
		Payloads:       imports.NewPayloadStore(redisClient, cfg.ResultTTL),
		Catalog:        catalogRepo,
		Applier:        applier,
		Idempotency:    idempotencyStore,
		Audit:          auditLogger,
		Enqueuer:       asynqClient,
		AsyncThreshold: cfg.ImportAsyncThreshold,
	})
	importsHandler := imports.NewHandler(logger, importsService, cfg.MaxUploadBytes)

	countsyncRepo := countsync.NewRepository(pool)
	countsyncService := countsync.NewService(countsyncRepo, catalogRepo, auditLogger)
	countsyncHandler := countsync.NewHandler(logger, countsyncService, cfg.MaxUploadBytes)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalogHandler,
		ImportsHandler:   importsHandler,
		CountSyncHandler: countsyncHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
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
