package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/storesync/storesync/internal/shared/logger"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDeliveryKey(t *testing.T) {
	assert.Equal(t, "storesync:delivery:IOS:002e14d5", deliveryKey("IOS", "002e14d5"))
}

func TestDeliveryDeduplicator_FailsOpen(t *testing.T) {
	d := NewDeliveryDeduplicator(unreachableRedis(t), time.Hour, logger.NewNopLogger())

	assert.True(t, d.Claim(context.Background(), "ANDROID", "136969346945"))
	assert.True(t, d.Claim(context.Background(), "ANDROID", "136969346945"))
	d.Release(context.Background(), "ANDROID", "136969346945")
}

func TestDeliveryDeduplicator_NilOrEmptyAlwaysClaims(t *testing.T) {
	var d *DeliveryDeduplicator
	assert.True(t, d.Claim(context.Background(), "IOS", "x"))

	d = NewDeliveryDeduplicator(nil, time.Hour, logger.NewNopLogger())
	assert.True(t, d.Claim(context.Background(), "IOS", "x"))
	d.Release(context.Background(), "IOS", "x")
}

func TestAlertDeduplicator_Key(t *testing.T) {
	d := NewAlertDeduplicator(nil)
	assert.Equal(t, "storesync:alert:plan_not_found:IOS:com.example.gold", d.buildKey(AlertTypePlanNotFound, "IOS:com.example.gold"))
}

func TestAlertDeduplicator_PropagatesRedisErrors(t *testing.T) {
	d := NewAlertDeduplicator(unreachableRedis(t))

	ok, err := d.TryAcquireAlertLock(context.Background(), AlertTypePlanNotFound, "IOS:x", time.Minute)

	assert.Error(t, err)
	assert.False(t, ok)
}
