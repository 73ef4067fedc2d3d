package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storesync/storesync/internal/infrastructure/appstore"
	"github.com/storesync/storesync/internal/infrastructure/auth"
	"github.com/storesync/storesync/internal/infrastructure/cache"
	"github.com/storesync/storesync/internal/infrastructure/catalog"
	"github.com/storesync/storesync/internal/infrastructure/config"
	"github.com/storesync/storesync/internal/infrastructure/email"
	"github.com/storesync/storesync/internal/infrastructure/playstore"
	"github.com/storesync/storesync/internal/infrastructure/pubsub"
	"github.com/storesync/storesync/internal/interfaces/http/middleware"
	"github.com/storesync/storesync/internal/shared/logger"
)

const rateLimitWindow = time.Minute

// ============================================================
// Section 1: Infrastructure - Redis, Repositories, Auth
// ============================================================

func (c *Container) initInfrastructure(ctx context.Context) {
	cfg := c.cfg
	log := c.log

	c.redis = initRedis(ctx, cfg, log)
	c.repos = newRepositories(c.db, log)

	c.jwtSvc = auth.NewJWTService(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer)
	c.authMiddleware = middleware.NewAuthMiddleware(c.jwtSvc, log.Named("auth"))
	c.rateLimiter = middleware.NewRateLimiter(c.redis, cfg.Server.ReceiptRateLimit, rateLimitWindow, log.Named("ratelimit"))
}

// initRedis connects to Redis. Redis only backs delivery de-duplication,
// alert cooldowns, rate limits and change events, so an unreachable server
// degrades those features instead of failing startup.
func initRedis(ctx context.Context, cfg *config.Config, log logger.Interface) *redis.Client {
	if !cfg.Redis.Enabled {
		log.Infow("redis disabled")
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warnw("failed to connect to Redis, continuing without it", "addr", cfg.Redis.GetAddr(), "error", err)
		_ = redisClient.Close()
		return nil
	}
	log.Infow("Redis connection established successfully", "addr", cfg.Redis.GetAddr())

	return redisClient
}

// ============================================================
// Section 2: Store clients and plan catalog
// ============================================================

type storeClients struct {
	catalog    *catalog.YAMLCatalog
	verifier   *appstore.SignedPayloadVerifier
	history    *appstore.HistoryClient
	purchases  *playstore.PurchaseClient
	signatures *playstore.SignatureVerifier // nil without a license key
}

func newStoreClients(ctx context.Context, cfg *config.Config, log logger.Interface) (*storeClients, error) {
	plans, err := catalog.LoadYAMLCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	log.Infow("plan catalog loaded", "path", cfg.Catalog.Path, "plans", len(plans.Entries()))

	httpClient := &http.Client{Timeout: cfg.Reconciliation.ExternalTimeout}

	verifierCfg := appstore.VerifierConfig{BundleID: cfg.AppStore.BundleID}
	if len(cfg.AppStore.RootCertPaths) > 0 {
		roots, err := appstore.LoadRootCertificates(cfg.AppStore.RootCertPaths)
		if err != nil {
			return nil, err
		}
		verifierCfg.Roots = roots
	}
	if cfg.AppStore.KeySetURL != "" {
		keySet, err := appstore.NewRemoteKeySet(ctx, cfg.AppStore.KeySetURL, log.Named("appstore.keyset"))
		if err != nil {
			return nil, err
		}
		verifierCfg.KeySet = keySet
	}
	verifier, err := appstore.NewSignedPayloadVerifier(verifierCfg, log.Named("appstore.verifier"))
	if err != nil {
		return nil, err
	}

	signer, err := appstore.LoadAPITokenSigner(cfg.AppStore.IssuerID, cfg.AppStore.KeyID, cfg.AppStore.BundleID, cfg.AppStore.PrivateKeyPath)
	if err != nil {
		return nil, err
	}
	history := appstore.NewHistoryClient(appstore.HistoryClientConfig{
		ProductionURL: cfg.AppStore.ProductionURL,
		SandboxURL:    cfg.AppStore.SandboxURL,
		MaxPages:      cfg.AppStore.MaxPages,
	}, signer, httpClient, log.Named("appstore.history"))

	playAuth, err := playstore.ServiceAccountOptions(ctx, cfg.PlayStore.ServiceAccountFile)
	if err != nil {
		return nil, err
	}
	purchases, err := playstore.NewPurchaseClient(ctx, playstore.PurchaseClientConfig{
		PackageName: cfg.PlayStore.PackageName,
		BaseURL:     cfg.PlayStore.APIBaseURL,
	}, log.Named("playstore.purchases"), playAuth...)
	if err != nil {
		return nil, err
	}

	clients := &storeClients{
		catalog:   plans,
		verifier:  verifier,
		history:   history,
		purchases: purchases,
	}

	if cfg.PlayStore.PublicKey != "" {
		signatures, err := playstore.NewSignatureVerifier(cfg.PlayStore.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("invalid playstore.public_key: %w", err)
		}
		clients.signatures = signatures
	} else {
		log.Warnw("playstore.public_key not set, signed purchase data and one-time notifications will be rejected")
	}

	return clients, nil
}

// newOperatorAlerter returns nil when alerting is off.
func newOperatorAlerter(cfg *config.Config, redisClient *redis.Client, log logger.Interface) *email.OperatorAlerter {
	if !cfg.Alert.Enabled {
		return nil
	}

	smtp := email.NewSMTPEmailService(email.SMTPConfig{
		Host:        cfg.Alert.SMTPHost,
		Port:        cfg.Alert.SMTPPort,
		Username:    cfg.Alert.SMTPUser,
		Password:    cfg.Alert.SMTPPassword,
		FromAddress: cfg.Alert.FromAddress,
		FromName:    "storesync",
	})

	var gate email.CooldownGate
	if redisClient != nil {
		gate = cache.NewAlertDeduplicator(redisClient)
	}
	return email.NewOperatorAlerter(smtp, cfg.Alert.Recipients, gate, cfg.Alert.Cooldown, log.Named("alerter"))
}

// newChangePublisher returns nil without Redis.
func newChangePublisher(redisClient *redis.Client, log logger.Interface) *pubsub.RedisSubscriptionEventBus {
	if redisClient == nil {
		return nil
	}
	return pubsub.NewRedisSubscriptionEventBus(redisClient, log.Named("pubsub"))
}
