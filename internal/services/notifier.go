package services

import (
	"context"
	"fmt"
	"time"

	"freelance-market/internal/config"
	"freelance-market/internal/domain"
	"freelance-market/pkg/logger"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

type NotifierOptions struct {
	Workers       int
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

func NotifierOptionsFromConfig(cfg config.NotificationsConfig) NotifierOptions {
	return NotifierOptions{
		Workers:       cfg.Workers,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
	}
}

// LifecycleNotifier fans lifecycle events out to subscribers in the background.
// Delivery is best-effort: failures are logged and never reach the caller.
type LifecycleNotifier struct {
	subscriptions domain.SubscriptionRepository
	gateway       domain.NotificationGateway
	limiter       *rate.Limiter
	opts          NotifierOptions
	inflight      conc.WaitGroup
	log           logger.Logger
}

func NewLifecycleNotifier(subscriptions domain.SubscriptionRepository, gateway domain.NotificationGateway,
	opts NotifierOptions, log logger.Logger) *LifecycleNotifier {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &LifecycleNotifier{
		subscriptions: subscriptions,
		gateway:       gateway,
		limiter:       rate.NewLimiter(limit, burst),
		opts:          opts,
		log:           log,
	}
}

// Announce sends kind to every current subscriber of auction. It returns immediately.
func (n *LifecycleNotifier) Announce(ctx context.Context, kind domain.EventKind, auction *domain.Auction) {
	snapshot := auction.Clone()
	ctx = context.WithoutCancel(ctx)

	n.inflight.Go(func() {
		ctx, cancel := n.dispatchContext(ctx)
		defer cancel()

		users, err := n.subscriptions.ListSubscribers(ctx, snapshot.ID)
		if err != nil {
			n.log.Error("Failed to load subscribers",
				"auction_id", snapshot.ID, "event", kind,
				"error", fmt.Errorf("%w: %v", domain.ErrNotificationDelivery, err))
			return
		}
		if len(users) == 0 {
			return
		}

		p := pool.New().WithMaxGoroutines(n.opts.Workers)
		for _, userID := range users {
			p.Go(func() {
				n.deliver(ctx, kind, snapshot, userID)
			})
		}
		p.Wait()

		n.log.Debug("Announced auction event", "auction_id", snapshot.ID, "event", kind, "recipients", len(users))
	})
}

// NotifyUser sends kind about auction to a single user. It returns immediately.
func (n *LifecycleNotifier) NotifyUser(ctx context.Context, kind domain.EventKind, auction *domain.Auction, userID string) {
	snapshot := auction.Clone()
	ctx = context.WithoutCancel(ctx)

	n.inflight.Go(func() {
		ctx, cancel := n.dispatchContext(ctx)
		defer cancel()
		n.deliver(ctx, kind, snapshot, userID)
	})
}

// Wait blocks until every dispatched notification has finished.
func (n *LifecycleNotifier) Wait() {
	if r := n.inflight.WaitAndRecover(); r != nil {
		n.log.Error("Notification dispatch panicked", "error", r.AsError())
	}
}

func (n *LifecycleNotifier) dispatchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.opts.Timeout > 0 {
		return context.WithTimeout(ctx, n.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (n *LifecycleNotifier) deliver(ctx context.Context, kind domain.EventKind, auction *domain.Auction, userID string) {
	var pc panics.Catcher
	var err error
	pc.Try(func() {
		if err = n.limiter.Wait(ctx); err != nil {
			return
		}
		err = n.gateway.Send(ctx, kind, auction, userID)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err != nil {
		n.log.Warn("Notification not delivered",
			"auction_id", auction.ID, "user_id", userID, "event", kind,
			"error", fmt.Errorf("%w: %v", domain.ErrNotificationDelivery, err))
	}
}
