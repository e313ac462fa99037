package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freelance-market/internal/domain"
	"freelance-market/pkg/logger"
)

// SubscriptionRegistry manages which users follow which auctions.
type SubscriptionRegistry struct {
	store domain.Store
	now   func() time.Time
	log   logger.Logger
}

func NewSubscriptionRegistry(store domain.Store, log logger.Logger) *SubscriptionRegistry {
	return &SubscriptionRegistry{store: store, now: time.Now, log: log}
}

// Subscribe registers userID for auctionID's lifecycle events. Only PENDING
// auctions accept explicit subscriptions and owners cannot follow their own.
func (r *SubscriptionRegistry) Subscribe(ctx context.Context, auctionID, userID string) error {
	err := r.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		auction, err := repos.Auctions.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := domain.RequireNotOwner(auction, userID); err != nil {
			return err
		}
		if err := domain.RequireStatus(auction, domain.AuctionPending); err != nil {
			return err
		}
		return repos.Subscriptions.AddSubscription(ctx, &domain.Subscription{
			AuctionID: auctionID,
			UserID:    userID,
			CreatedAt: r.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("service: subscribe %s to %s: %w", userID, auctionID, err)
	}

	r.log.Info("User subscribed", "auction_id", auctionID, "user_id", userID)
	return nil
}

func (r *SubscriptionRegistry) Unsubscribe(ctx context.Context, auctionID, userID string) error {
	removed, err := r.store.Repositories().Subscriptions.RemoveSubscription(ctx, auctionID, userID)
	if err != nil {
		return fmt.Errorf("service: unsubscribe %s from %s: %w", userID, auctionID, err)
	}
	if !removed {
		return fmt.Errorf("service: unsubscribe %s from %s: %w", userID, auctionID, domain.ErrNotFound)
	}

	r.log.Info("User unsubscribed", "auction_id", auctionID, "user_id", userID)
	return nil
}

func (r *SubscriptionRegistry) IsSubscribed(ctx context.Context, auctionID, userID string) (bool, error) {
	ok, err := r.store.Repositories().Subscriptions.Exists(ctx, auctionID, userID)
	if err != nil {
		return false, fmt.Errorf("service: check subscription %s on %s: %w", userID, auctionID, err)
	}
	return ok, nil
}

func (r *SubscriptionRegistry) SubscribersOf(ctx context.Context, auctionID string) ([]string, error) {
	users, err := r.store.Repositories().Subscriptions.ListSubscribers(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: list subscribers of %s: %w", auctionID, err)
	}
	return users, nil
}

// ensureSubscribed adds the pair inside an open transaction, skipping the
// PENDING and owner rules. Bidders follow the auctions they bid on.
func (r *SubscriptionRegistry) ensureSubscribed(ctx context.Context, repos domain.Repositories, auctionID, userID string) {
	exists, err := repos.Subscriptions.Exists(ctx, auctionID, userID)
	if err == nil && !exists {
		err = repos.Subscriptions.AddSubscription(ctx, &domain.Subscription{
			AuctionID: auctionID,
			UserID:    userID,
			CreatedAt: r.now(),
		})
	}
	if err != nil && !errors.Is(err, domain.ErrDuplicateEntity) {
		r.log.Warn("Auto-subscribe failed", "auction_id", auctionID, "user_id", userID, "error", err)
	}
}
