package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ReminderLedger records sent ending soon notices in Redis so that every
// scheduler instance sees them. Keys expire when the auction ends.
type ReminderLedger struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewReminderLedger(client redis.UniversalClient) *ReminderLedger {
	return &ReminderLedger{client: client, now: time.Now}
}

func reminderKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:ending_soon", auctionID)
}

func (r *ReminderLedger) MarkEndingSoon(ctx context.Context, auctionID string, until time.Time) (bool, error) {
	ttl := until.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}

	first, err := r.client.SetNX(ctx, reminderKey(auctionID), r.now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: mark ending soon for %s: %w", auctionID, err)
	}
	return first, nil
}
