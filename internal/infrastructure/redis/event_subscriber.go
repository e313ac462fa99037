package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"freelance-market/internal/domain"
	"freelance-market/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type RedisEventSubscriber struct {
	client  redis.UniversalClient
	channel string
	log     logger.Logger
}

func NewRedisEventSubscriber(client redis.UniversalClient, channel string, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client:  client,
		channel: channel,
		log:     log,
	}
}

// SubscribeToNotifications blocks, passing every decoded notification to
// handler until ctx is cancelled. Bad payloads and handler errors are logged.
func (r *RedisEventSubscriber) SubscribeToNotifications(ctx context.Context, handler domain.NotificationHandler) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe to %s: %w", r.channel, err)
	}
	ch := pubsub.Channel()

	r.log.Info("Subscribed to notifications", "channel", r.channel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis: channel %s closed", r.channel)
			}
			n, err := parseNotification(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse notification", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(ctx, n); err != nil {
				r.log.Error("Failed to handle notification", "type", n.Kind, "user_id", n.UserID, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Notification subscriber stopped")
			return ctx.Err()
		}
	}
}

func parseNotification(payload string) (*domain.Notification, error) {
	var n domain.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return nil, fmt.Errorf("invalid notification payload: %w", err)
	}
	return &n, nil
}
