package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storesync/storesync/internal/shared/constants"
	"github.com/storesync/storesync/internal/shared/logger"
)

// DeliveryDeduplicator remembers store notification delivery ids so a
// redelivered webhook is acknowledged without reprocessing. Redis errors
// let the delivery through; the database is the real idempotency guard.
type DeliveryDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Interface
}

func NewDeliveryDeduplicator(client *redis.Client, ttl time.Duration, log logger.Interface) *DeliveryDeduplicator {
	return &DeliveryDeduplicator{client: client, ttl: ttl, logger: log}
}

func deliveryKey(platform, deliveryID string) string {
	return constants.RedisKeyDeliveryPrefix + platform + ":" + deliveryID
}

// Claim returns true when the caller is the first to see the delivery.
func (d *DeliveryDeduplicator) Claim(ctx context.Context, platform, deliveryID string) bool {
	if d == nil || d.client == nil || deliveryID == "" {
		return true
	}
	ok, err := d.client.SetNX(ctx, deliveryKey(platform, deliveryID), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		d.logger.Warnw("delivery dedup unavailable, processing anyway",
			"platform", platform,
			"delivery_id", deliveryID,
			"error", err,
		)
		return true
	}
	return ok
}

// Release forgets a claim so the store's retry is processed again. Used when
// processing failed with a retryable error.
func (d *DeliveryDeduplicator) Release(ctx context.Context, platform, deliveryID string) {
	if d == nil || d.client == nil || deliveryID == "" {
		return
	}
	if err := d.client.Del(ctx, deliveryKey(platform, deliveryID)).Err(); err != nil {
		d.logger.Warnw("failed to release delivery claim",
			"platform", platform,
			"delivery_id", deliveryID,
			"error", err,
		)
	}
}
