package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"presence-service/internal/client"
	"presence-service/internal/config"
	"presence-service/internal/handler"
	"presence-service/internal/middleware"
	"presence-service/internal/repository"
	"presence-service/internal/service"
)

// Setup wires the HTTP surface: health and metrics endpoints, the per-trip
// presence WebSocket, and the authenticated REST queries. Returns the engine
// and the presence service so main can drain sessions on shutdown.
func Setup(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, logger *zap.Logger) (*gin.Engine, *service.PresenceService) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS("*"))
	r.Use(middleware.MetricsMiddleware())

	// Initialize repositories
	presenceRepo := repository.NewPresenceRepository(db)

	// Initialize services
	presenceService := service.NewPresenceService(cfg, presenceRepo, redisClient, logger)

	// Initialize validator and clients
	validator := middleware.NewAuthServiceValidator(cfg.Auth.ServiceURL, cfg.Auth.SecretKey, logger)
	userClient := client.NewUserClient(cfg.Services.UserServiceURL, cfg.Auth.ServiceURL, 5*time.Second)

	// Initialize handlers
	wsHandler := handler.NewWSHandler(logger, userClient, presenceService)
	presenceHandler := handler.NewPresenceHandler(presenceService, logger)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	// Health endpoints (no auth)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", middleware.MetricsHandler())

	// API routes with base path
	api := r.Group(cfg.Server.BasePath)
	{
		// Health under base path
		api.GET("/health", healthHandler.Health)
		api.GET("/ready", healthHandler.Ready)

		// WebSocket endpoint (token passed as query parameter)
		api.GET("/ws/trips/:tripId", wsHandler.HandleWebSocket)

		// Authenticated routes
		authenticated := api.Group("")
		authenticated.Use(middleware.AuthMiddleware(validator))
		{
			authenticated.GET("/trips/:tripId/active", presenceHandler.GetActiveUsers)
			authenticated.GET("/trips/:tripId/status/:userId", presenceHandler.GetUserStatus)
		}
	}

	return r, presenceService
}
