package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"presence-service/internal/config"
	"presence-service/internal/database"
	"presence-service/internal/job"
	"presence-service/internal/repository"
	"presence-service/internal/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("🔧 Starting Presence Service",
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("auth_service_url", cfg.Auth.ServiceURL),
		zap.String("user_service_url", cfg.Services.UserServiceURL))

	// Database connection (실패해도 앱은 시작됨 - pod 생존 보장)
	db, err := database.NewDB(cfg)
	if err != nil {
		logger.Warn("⚠️  Failed to connect to database on startup, will retry in background",
			zap.Error(err))
		database.NewAsync(cfg, 5*time.Second)
	} else {
		database.SetDB(db)
		logger.Info("✅ Database connected")
	}

	// Redis connection backing the realtime channels
	redisClient := database.InitRedis(cfg)
	if redisClient == nil {
		logger.Warn("⚠️  Redis unavailable, realtime presence degraded to database mirror")
	}

	// Router and presence service
	r, presenceService := router.Setup(cfg, database.GetDB(), redisClient, logger)

	// Stale-presence reaper
	scheduler := cron.New()
	if database.GetDB() != nil {
		reaper := job.NewReaperJob(
			repository.NewPresenceRepository(database.GetDB()),
			cfg.Presence.AwayTimeout(),
			cfg.Presence.OfflineAfter(),
			logger,
		)
		if _, err := scheduler.AddJob(cfg.Presence.ReaperSchedule, reaper); err != nil {
			logger.Warn("Failed to schedule presence reaper", zap.Error(err))
		} else {
			scheduler.Start()
			logger.Info("Presence reaper scheduled",
				zap.String("schedule", cfg.Presence.ReaperSchedule))
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("🚀 Presence Service started successfully",
			zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	scheduler.Stop()

	// Drain sessions first so every user gets an offline broadcast and a
	// durable offline write before the listener goes away.
	presenceService.StopAll()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

// initLogger initializes the zap logger with the specified level
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      zapLevel == zapcore.DebugLevel,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
