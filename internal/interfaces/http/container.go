package http

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/storesync/storesync/internal/application/reconciliation/usecases"
	"github.com/storesync/storesync/internal/infrastructure/auth"
	"github.com/storesync/storesync/internal/infrastructure/config"
	"github.com/storesync/storesync/internal/infrastructure/scheduler"
	"github.com/storesync/storesync/internal/interfaces/http/middleware"
	"github.com/storesync/storesync/internal/shared/logger"
)

// Container holds all infrastructure components, repositories, use cases and
// handlers of the service, wired together. Shutdown releases what it opened.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client // nil when Redis is disabled or unreachable

	repos  *repositories
	stores *storeClients
	ucs    *allUseCases
	hdlrs  *allHandlers

	// Middlewares
	jwtSvc         *auth.JWTService
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter

	schedulerManager *scheduler.SchedulerManager
}

// NewContainer wires the service. It fails when a store credential or the
// plan catalog cannot be loaded.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config, log logger.Interface) (*Container, error) {
	c := &Container{
		engine: gin.New(),
		db:     db,
		cfg:    cfg,
		log:    log,
	}

	// Section 1: Infrastructure - Redis, Repositories, Auth
	c.initInfrastructure(ctx)

	// Section 2: Store clients and plan catalog
	stores, err := newStoreClients(ctx, cfg, log)
	if err != nil {
		c.closeRedis()
		return nil, err
	}
	c.stores = stores

	// Section 3: Reconciliation use cases
	c.initUseCases()

	// Section 4: Handlers
	c.initHandlers()

	return c, nil
}

// RecoverSubscription exposes the single-record recovery for the CLI.
func (c *Container) RecoverSubscription() *usecases.RecoverSubscriptionUseCase {
	return c.ucs.recoverSubscription
}

// RecoverStaleSubscriptions exposes the sweep for the CLI.
func (c *Container) RecoverStaleSubscriptions() *usecases.RecoverStaleSubscriptionsUseCase {
	return c.ucs.recoverStale
}

// StartScheduler registers and starts the recovery sweep when enabled.
func (c *Container) StartScheduler() error {
	if !c.cfg.Scheduler.Enabled {
		c.log.Infow("recovery scheduler disabled")
		return nil
	}

	manager, err := scheduler.NewSchedulerManager(c.log.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := manager.RegisterRecoveryJob(c.ucs.recoverStale, c.cfg.Scheduler.RecoveryInterval, 0); err != nil {
		return fmt.Errorf("failed to register recovery job: %w", err)
	}
	manager.Start()
	c.schedulerManager = manager
	return nil
}

// Shutdown stops background work and closes Redis. The database belongs to
// the caller.
func (c *Container) Shutdown() {
	if c.schedulerManager != nil {
		if err := c.schedulerManager.Stop(); err != nil {
			c.log.Errorw("failed to stop scheduler", "error", err)
		}
	}
	c.closeRedis()
}

func (c *Container) closeRedis() {
	if c.redis == nil {
		return
	}
	if err := c.redis.Close(); err != nil {
		c.log.Warnw("failed to close redis client", "error", err)
	}
}
