package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"freelance-market/internal/domain"

	"github.com/go-redis/redis/v8"
)

// NotificationPublisher is the domain.NotificationGateway of the auction
// service. Each notification is published as JSON on one channel and picked
// up by whichever notification-service instance holds the user's connection.
type NotificationPublisher struct {
	client  redis.UniversalClient
	channel string
	now     func() time.Time
}

func NewNotificationPublisher(client redis.UniversalClient, channel string) *NotificationPublisher {
	return &NotificationPublisher{client: client, channel: channel, now: time.Now}
}

func (p *NotificationPublisher) Send(ctx context.Context, kind domain.EventKind, auction *domain.Auction, userID string) error {
	payload, err := json.Marshal(domain.NewNotification(kind, auction, userID, p.now().UTC()))
	if err != nil {
		return fmt.Errorf("redis: encode %s notification: %w", kind, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s to %s: %w", kind, userID, err)
	}
	return nil
}
