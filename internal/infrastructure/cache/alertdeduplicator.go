package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storesync/storesync/internal/shared/constants"
)

type AlertType string

// AlertTypePlanNotFound is raised when a store product id has no plan.
const AlertTypePlanNotFound AlertType = "plan_not_found"

// AlertDeduplicator is the cooldown gate for operator alerts. The first
// instance to mark a subject sends the alert; the others stay silent until
// the mark expires.
type AlertDeduplicator struct {
	client *redis.Client
}

func NewAlertDeduplicator(client *redis.Client) *AlertDeduplicator {
	return &AlertDeduplicator{client: client}
}

// TryAcquireAlertLock marks storesync:alert:{type}:{subject} for ttl and
// reports whether this caller set the mark.
func (d *AlertDeduplicator) TryAcquireAlertLock(ctx context.Context, alertType AlertType, subject string, ttl time.Duration) (bool, error) {
	key := d.buildKey(alertType, subject)
	acquired, err := d.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("alert cooldown %s: %w", key, err)
	}
	return acquired, nil
}

func (d *AlertDeduplicator) buildKey(alertType AlertType, subject string) string {
	return constants.RedisKeyAlertPrefix + string(alertType) + ":" + subject
}
