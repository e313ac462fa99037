package services

import (
	"context"
	"fmt"

	"freelance-market/internal/domain"
	"freelance-market/pkg/logger"
)

// NotificationRelay hands published notifications to the recipient's live connections.
type NotificationRelay struct {
	notifier domain.UserNotifier
	log      logger.Logger
}

func NewNotificationRelay(notifier domain.UserNotifier, log logger.Logger) *NotificationRelay {
	return &NotificationRelay{notifier: notifier, log: log}
}

// Start blocks until ctx is done or the subscription fails.
func (r *NotificationRelay) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	r.log.Info("Starting notification relay")
	return subscriber.SubscribeToNotifications(ctx, r.handleNotification)
}

func (r *NotificationRelay) handleNotification(ctx context.Context, n *domain.Notification) error {
	if !n.Kind.Valid() {
		r.log.Warn("Dropping notification of unknown type", "type", n.Kind, "auction_id", n.AuctionID)
		return nil
	}
	if n.UserID == "" {
		return fmt.Errorf("relay: %s for auction %s has no recipient", n.Kind, n.AuctionID)
	}

	r.log.Debug("Relaying notification", "type", n.Kind, "auction_id", n.AuctionID, "user_id", n.UserID)
	if err := r.notifier.NotifyUser(ctx, n.UserID, n); err != nil {
		return fmt.Errorf("relay: deliver %s to %s: %w", n.Kind, n.UserID, err)
	}
	return nil
}
