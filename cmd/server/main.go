package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/api"
	"github.com/dharsanguruparan/CleanOps/internal/backend"
	"github.com/dharsanguruparan/CleanOps/internal/cache"
	"github.com/dharsanguruparan/CleanOps/internal/config"
	"github.com/dharsanguruparan/CleanOps/internal/database"
	"github.com/dharsanguruparan/CleanOps/internal/logging"
	"github.com/dharsanguruparan/CleanOps/internal/photo"
	"github.com/dharsanguruparan/CleanOps/internal/repository"
	"github.com/dharsanguruparan/CleanOps/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "cleanops-api")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	redisClient, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	client := backend.New(cfg.APIBaseURL, cfg.APITimeout, logger)
	deps := api.Deps{
		Backend: func(token string) api.Backend { return client.WithToken(token) },
		Store:   cache.New(cache.NewRedisKV(redisClient), logger).Namespace("cleanops"),
	}

	var store *s3storage.Storage
	if cfg.PhotoBackend == "s3" || cfg.DatabaseURL != "" {
		if store, err = s3storage.New(cfg); err != nil {
			logger.Fatal("init storage", zap.Error(err))
		}
		if err := store.EnsureBuckets(ctx); err != nil {
			logger.Fatal("ensure buckets", zap.Error(err))
		}
	}
	if cfg.PhotoBackend == "s3" {
		deps.Uploader = photo.NewS3Uploader(store)
	} else {
		deps.Uploader = photo.NewImageHost(cfg.AssetUploadURL, cfg.AssetUploadPreset, cfg.APITimeout)
	}

	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("connect database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("ensure schema", zap.Error(err))
		}
		queueClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
		deps.Exports = repository.NewExportRepository(pool)
		deps.Links = store
		deps.Queue = queueClient
	} else {
		logger.Warn("CLEANOPS_DATABASE_URL not set, PDF exports disabled")
	}

	srv := api.New(cfg, deps, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
