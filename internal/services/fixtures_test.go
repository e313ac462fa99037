package services

import (
	"context"
	"testing"
	"time"

	"freelance-market/internal/domain"
	"freelance-market/internal/infrastructure/memory"
	"freelance-market/pkg/logger"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	store       *memory.Store
	gateway     *recordingGateway
	notifier    *LifecycleNotifier
	registry    *SubscriptionRegistry
	reputations *memory.Reputations
	svc         *AuctionService
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:       memory.NewStore(),
		gateway:     &recordingGateway{},
		reputations: memory.NewReputations(nil),
		now:         time.Now().UTC().Truncate(time.Second),
	}
	log := logger.NewNop()
	clock := func() time.Time { return f.now }

	f.notifier = NewLifecycleNotifier(f.store.Repositories().Subscriptions, f.gateway, testNotifierOptions(), log)
	f.registry = NewSubscriptionRegistry(f.store, log)
	f.registry.now = clock
	f.svc = NewAuctionService(f.store, f.registry, f.notifier, NewOfferRanker(DefaultScoringWeights()), f.reputations, log)
	f.svc.now = clock

	t.Cleanup(f.notifier.Wait)
	return f
}

func draftStarting(start time.Time, length time.Duration) domain.AuctionDraft {
	return domain.AuctionDraft{
		Title:                 "Landing page redesign",
		Description:           "Three screens, responsive",
		CategoryIDs:           []string{"design"},
		StartDate:             start,
		EndDate:               start.Add(length),
		RequestedDeliveryDays: 10,
	}
}

func (f *fixture) pendingAuction(t *testing.T, owner string) *domain.Auction {
	t.Helper()
	a, err := f.svc.CreateAuction(context.Background(), owner, draftStarting(f.now.Add(time.Hour), 2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.AuctionPending, a.Status)
	return a
}

func (f *fixture) openAuction(t *testing.T, owner string) *domain.Auction {
	t.Helper()
	a, err := f.svc.CreateAuction(context.Background(), owner, draftStarting(f.now.Add(-time.Hour), 3*time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.AuctionOpen, a.Status)
	return a
}

// forceStatus writes status directly, bypassing the lifecycle.
func (f *fixture) forceStatus(t *testing.T, auctionID string, status domain.AuctionStatus) {
	t.Helper()
	ctx := context.Background()
	repos := f.store.Repositories()
	a, err := repos.Auctions.GetAuction(ctx, auctionID)
	require.NoError(t, err)
	a.Status = status
	require.NoError(t, repos.Auctions.UpdateAuction(ctx, a))
}

func (f *fixture) status(t *testing.T, auctionID string) domain.AuctionStatus {
	t.Helper()
	a, err := f.store.Repositories().Auctions.GetAuction(context.Background(), auctionID)
	require.NoError(t, err)
	return a.Status
}
