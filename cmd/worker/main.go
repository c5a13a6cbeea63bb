package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/backend"
	"github.com/dharsanguruparan/CleanOps/internal/config"
	"github.com/dharsanguruparan/CleanOps/internal/database"
	"github.com/dharsanguruparan/CleanOps/internal/logging"
	"github.com/dharsanguruparan/CleanOps/internal/render"
	"github.com/dharsanguruparan/CleanOps/internal/repository"
	"github.com/dharsanguruparan/CleanOps/internal/s3storage"
	"github.com/dharsanguruparan/CleanOps/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "cleanops-worker")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	if cfg.ServiceToken == "" {
		logger.Fatal("CLEANOPS_SERVICE_TOKEN is required to read reports")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}
	repo := repository.NewExportRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		logger.Fatal("init storage", zap.Error(err))
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		logger.Fatal("ensure buckets", zap.Error(err))
	}

	reports := backend.New(cfg.APIBaseURL, cfg.APITimeout, logger).WithToken(cfg.ServiceToken)
	exporter := render.NewExporter(render.NewHTTPFetcher(cfg.APITimeout), logger)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.ProcessingPool,
		Logger:      logger.Sugar(),
	})
	processor := worker.NewProcessor(repo, reports, store, exporter, logger)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker started", zap.Int("concurrency", cfg.ProcessingPool))
	if err := server.Run(mux); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}
