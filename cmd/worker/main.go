// Package main runs the background job worker (finalize retries, transcript archives).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/critroll/backend/config"
	"github.com/critroll/backend/internal/errorlog"
	"github.com/critroll/backend/internal/models"
	"github.com/critroll/backend/internal/recordings"
	"github.com/critroll/backend/internal/transcripts"
	"github.com/critroll/backend/internal/worker"
	"github.com/critroll/backend/pkg/database"
	"github.com/critroll/backend/pkg/queue"
	"github.com/critroll/backend/pkg/redis"
	"github.com/critroll/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	wasabi, err := storage.NewWasabi(ctx, storage.WasabiConfig{
		Region:               cfg.Wasabi.Region,
		Endpoint:             cfg.Wasabi.Endpoint,
		AccessKeyID:          cfg.Wasabi.AccessKeyID,
		SecretAccessKey:      cfg.Wasabi.SecretAccessKey,
		Bucket:               cfg.Wasabi.Bucket,
		ArchiveBucket:        cfg.Wasabi.ArchiveBucket,
		PresignExpireMinutes: cfg.Wasabi.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("wasabi", zap.Error(err))
	}

	providers := map[string]storage.Provider{
		models.ProviderWasabi: wasabi,
	}
	if cfg.GoogleDrive.RefreshToken != "" {
		gdrive, err := storage.NewGoogleDrive(ctx, storage.GoogleDriveConfig{
			ClientID:     cfg.GoogleDrive.ClientID,
			ClientSecret: cfg.GoogleDrive.ClientSecret,
			RefreshToken: cfg.GoogleDrive.RefreshToken,
			FolderID:     cfg.GoogleDrive.FolderID,
		}, logger)
		if err != nil {
			logger.Warn("google drive disabled", zap.Error(err))
		} else {
			providers[models.ProviderGoogleDrive] = gdrive
		}
	}

	recRepo := recordings.NewRepository(pool)
	errorRepo := errorlog.NewRepository(pool)
	lifecycle := recordings.NewLifecycle(recRepo, providers, errorRepo, logger)
	trRepo := transcripts.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(lifecycle, recRepo, trRepo, wasabi, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go processor.RunStaleSweep(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
