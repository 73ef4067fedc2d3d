package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storesync/storesync/internal/shared/constants"
	"github.com/storesync/storesync/internal/shared/logger"
)

// SubscriptionChangeEvent tells other services that a user's subscription
// status moved. The push notification service listens for it.
type SubscriptionChangeEvent struct {
	UserID         uint   `json:"user_id"`
	Environment    string `json:"environment"`
	Platform       string `json:"platform"`
	PlanID         string `json:"plan_id"`
	EventKind      string `json:"event_kind"`
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status"`
	Entitled       bool   `json:"entitled"`
	Timestamp      int64  `json:"timestamp"`
}

// SubscriptionEventHandler is a callback function for handling subscription events
type SubscriptionEventHandler func(ctx context.Context, event SubscriptionChangeEvent)

// RedisSubscriptionEventBus publishes and consumes subscription change
// events over Redis Pub/Sub.
type RedisSubscriptionEventBus struct {
	client  *redis.Client
	channel string
	logger  logger.Interface
}

func NewRedisSubscriptionEventBus(client *redis.Client, logger logger.Interface) *RedisSubscriptionEventBus {
	return &RedisSubscriptionEventBus{
		client:  client,
		channel: constants.ChannelSubscriptionChange,
		logger:  logger,
	}
}

// Publish sends event. A zero Timestamp is filled in.
func (b *RedisSubscriptionEventBus) Publish(ctx context.Context, event SubscriptionChangeEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish subscription change event",
			"user_id", event.UserID,
			"environment", event.Environment,
			"status", event.Status,
			"error", err,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debugw("subscription change event published",
		"user_id", event.UserID,
		"previous_status", event.PreviousStatus,
		"status", event.Status,
	)
	return nil
}

// Subscribe blocks, calling handler for each event until ctx is done.
func (b *RedisSubscriptionEventBus) Subscribe(ctx context.Context, handler SubscriptionEventHandler) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Infow("subscribed to subscription change events", "channel", b.channel)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("subscription event subscriber stopped", "reason", ctx.Err())
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("subscription event channel closed")
				return nil
			}
			event, err := DecodeSubscriptionChangeEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.Warnw("failed to unmarshal subscription event",
					"payload", msg.Payload,
					"error", err,
				)
				continue
			}
			handler(ctx, event)
		}
	}
}

func DecodeSubscriptionChangeEvent(payload []byte) (SubscriptionChangeEvent, error) {
	var event SubscriptionChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, err
	}
	if event.UserID == 0 {
		return event, fmt.Errorf("event has no user id")
	}
	return event, nil
}
