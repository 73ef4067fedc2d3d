package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/storesync/storesync/internal/infrastructure/metrics"
	"github.com/storesync/storesync/internal/interfaces/http/handlers"
	"github.com/storesync/storesync/internal/interfaces/http/middleware"
	"github.com/storesync/storesync/internal/shared/logger"
)

const healthCheckTimeout = 2 * time.Second

// Router represents the HTTP router configuration
type Router struct {
	engine         *gin.Engine
	webhookHandler *handlers.WebhookHandler
	receiptHandler *handlers.ReceiptHandler
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
	db             *gorm.DB
	redis          *redis.Client
	logger         logger.Interface
}

// NewRouter builds the router over the container's handlers.
func NewRouter(c *Container) *Router {
	return &Router{
		engine:         c.engine,
		webhookHandler: c.hdlrs.webhookHandler,
		receiptHandler: c.hdlrs.receiptHandler,
		authMiddleware: c.authMiddleware,
		rateLimiter:    c.rateLimiter,
		db:             c.db,
		redis:          c.redis,
		logger:         c.log,
	}
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes() {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.RequestLogger(r.logger))
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(metrics.Middleware())

	r.engine.GET("/health", r.health)
	r.engine.GET("/metrics", metrics.Handler())

	// Store server notifications. The stores authenticate with signatures
	// inside the payload, not with headers.
	webhooks := r.engine.Group("/webhooks")
	{
		webhooks.POST("/playstore", r.webhookHandler.PlayStore)
		webhooks.POST("/appstore/sandbox", r.webhookHandler.AppStoreSandbox)
		webhooks.POST("/appstore/production", r.webhookHandler.AppStoreProduction)
	}

	api := r.engine.Group("/api/v1")
	api.Use(r.authMiddleware.RequireAuth())
	{
		api.POST("/receipts/validate", r.rateLimiter.Limit(), r.receiptHandler.Validate)
	}
}

// health reports the database as required and Redis as optional.
func (r *Router) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{"database": "ok"}

	if sqlDB, err := r.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = "unavailable"
	}

	switch {
	case r.redis == nil:
		checks["redis"] = "disabled"
	case r.redis.Ping(ctx).Err() != nil:
		checks["redis"] = "degraded"
	default:
		checks["redis"] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":  state,
		"service": "storesync",
		"checks":  checks,
	})
}

// GetEngine returns the gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
