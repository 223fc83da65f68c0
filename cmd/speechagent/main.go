// Package main runs the companion speech agent: it streams audio to a
// speech-to-text provider and submits transcript chunks to the platform.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/critroll/backend/config"
	"github.com/critroll/backend/internal/speech"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	roomID, err := uuid.Parse(cfg.Agent.RoomID)
	if err != nil {
		logger.Fatal("AGENT_ROOM_ID must be a valid room UUID", zap.Error(err))
	}
	if cfg.Agent.Token == "" {
		logger.Fatal("AGENT_TOKEN is required")
	}

	sink := speech.NewHTTPSink(cfg.Agent.ServerURL, roomID, cfg.Agent.Token, os.Getenv("AGENT_CHARACTER"))
	batcher := speech.NewTranscriptBatcher(sink, cfg.Speech.Provider, cfg.Speech.Language,
		time.Duration(cfg.Speech.FlushIntervalSec)*time.Second, logger)

	cloud := speech.NewCloudProvider(speech.CloudConfig{
		AuthKey:   cfg.Speech.CloudAuthKey,
		TokenURL:  cfg.Speech.CloudTokenURL,
		StreamURL: cfg.Speech.CloudStreamURL,
		Language:  cfg.Speech.Language,
	}, logger)
	// The agent has no local recognition engine; the native provider is
	// registered unavailable so a misconfigured fallback fails loudly.
	native := speech.NewNativeProvider(nil)

	providers := map[string]speech.Provider{
		cloud.Name():  cloud,
		native.Name(): native,
	}

	orchestrator := speech.NewOrchestrator(providers, batcher, speech.Options{
		ProviderName:       cfg.Speech.Provider,
		FallbackProvider:   cfg.Speech.FallbackProvider,
		MaxRestartAttempts: cfg.Speech.MaxRestartAttempts,
		Policy:             speech.NewReconnectionPolicy(cfg.Speech.BaseRestartDelayMs, cfg.Speech.MaxRestartDelayMs),
		OnPermanentFailure: func(class speech.ErrorClass) {
			logger.Error("speech capture stopped, manual restart required", zap.String("class", string(class)))
		},
	}, logger)
	defer orchestrator.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orchestrator.Initialize(ctx); err != nil {
		logger.Fatal("initialize speech provider", zap.Error(err))
	}
	if err := orchestrator.Start(ctx); err != nil {
		logger.Fatal("start speech session", zap.Error(err))
	}

	go orchestrator.Run(ctx)
	go batcher.Run(ctx)
	logger.Info("speech agent started",
		zap.String("provider", orchestrator.ActiveProvider()),
		zap.String("room_id", roomID.String()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := orchestrator.Stop(stopCtx); err != nil {
		logger.Warn("stop speech session", zap.Error(err))
	}
	cancel()
	time.Sleep(time.Second)
	logger.Info("speech agent stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
