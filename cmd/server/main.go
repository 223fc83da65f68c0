// Package main runs the rooms platform HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/critroll/backend/config"
	"github.com/critroll/backend/internal/auth"
	"github.com/critroll/backend/internal/errorlog"
	"github.com/critroll/backend/internal/middleware"
	"github.com/critroll/backend/internal/models"
	"github.com/critroll/backend/internal/realtime"
	"github.com/critroll/backend/internal/recordings"
	"github.com/critroll/backend/internal/rooms"
	"github.com/critroll/backend/internal/transcripts"
	"github.com/critroll/backend/pkg/database"
	"github.com/critroll/backend/pkg/queue"
	"github.com/critroll/backend/pkg/redis"
	"github.com/critroll/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Storage providers: a room only needs the provider it is configured for,
	// so either may be absent.
	providers := make(map[string]storage.Provider)
	if cfg.Wasabi.AccessKeyID != "" {
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
			logger.Warn("wasabi disabled", zap.Error(err))
		} else {
			providers[models.ProviderWasabi] = wasabi
		}
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

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Rooms
	roomRepo := rooms.NewRepository(pool)
	roomHandler := rooms.NewHandler(roomRepo, logger)

	// Recordings
	recordingRepo := recordings.NewRepository(pool)
	errorRepo := errorlog.NewRepository(pool)
	lifecycle := recordings.NewLifecycle(recordingRepo, providers, errorRepo, logger)
	recordingHandler := recordings.NewHandler(lifecycle, recordingRepo, roomRepo, hub, logger)
	errorHandler := errorlog.NewHandler(errorRepo, logger)

	// Transcripts
	jobQueue := queue.NewQueue(rdb.Client, logger)
	transcriptRepo := transcripts.NewRepository(pool)
	transcriptHandler := transcripts.NewHandler(transcriptRepo, jobQueue, hub, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)

		// Rooms
		api.GET("/rooms", roomHandler.List)
		api.POST("/rooms", middleware.RequireRole(models.RoleAdmin, models.RoleGM), roomHandler.Create)
		api.GET("/rooms/:id", roomHandler.GetByID)
		api.PUT("/rooms/:id/recording-settings", roomHandler.UpdateRecordingSettings)
		api.DELETE("/rooms/:id", roomHandler.Delete)

		// Recordings
		api.POST("/rooms/:id/recordings/start", recordingHandler.Start)
		api.GET("/rooms/:id/recordings", recordingHandler.ListByRoom)
		api.GET("/recordings/:id/parts/:part/upload-url", recordingHandler.PartUploadURL)
		api.POST("/recordings/:id/parts", recordingHandler.RecordPart)
		api.POST("/recordings/:id/stop", recordingHandler.Stop)
		api.GET("/recordings/:id/download-url", recordingHandler.DownloadURL)

		// Recording errors (GM/admin diagnosis)
		api.GET("/rooms/:id/recording-errors", middleware.RequireRole(models.RoleAdmin, models.RoleGM), errorHandler.ListByRoom)
		api.PATCH("/recording-errors/:id/resolve", middleware.RequireRole(models.RoleAdmin, models.RoleGM), errorHandler.Resolve)

		// Transcripts
		api.POST("/rooms/:id/transcripts", transcriptHandler.SubmitBatch)
		api.GET("/rooms/:id/transcripts", transcriptHandler.ListByRoom)
		api.POST("/rooms/:id/transcripts/archive", middleware.RequireRole(models.RoleAdmin, models.RoleGM), transcriptHandler.Archive)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWs(hub, logger, jwtValidate)(c)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
