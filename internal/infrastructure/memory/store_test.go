package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"freelance-market/internal/domain"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newAuction(id string, status domain.AuctionStatus, start, end time.Time) *domain.Auction {
	return &domain.Auction{
		ID:                    id,
		Title:                 id,
		OwnerID:               "owner",
		StartDate:             start,
		EndDate:               end,
		RequestedDeliveryDays: 10,
		Status:                status,
		CreatedAt:             start,
	}
}

func TestStore_WithinTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Auctions.CreateAuction(ctx, newAuction("a1", domain.AuctionPending, t0, t0.Add(time.Hour)))
	})
	require.NoError(t, err)

	got, err := store.Repositories().Auctions.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Version)
}

func TestStore_WithinTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		require.NoError(t, repos.Auctions.CreateAuction(ctx, newAuction("a1", domain.AuctionPending, t0, t0.Add(time.Hour))))
		require.NoError(t, repos.Subscriptions.AddSubscription(ctx, &domain.Subscription{AuctionID: "a1", UserID: "u1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Repositories().Auctions.GetAuction(ctx, "a1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	ok, err := store.Repositories().Subscriptions.Exists(ctx, "a1", "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuctionRepo_UpdateRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()
	require.NoError(t, repos.Auctions.CreateAuction(ctx, newAuction("a1", domain.AuctionPending, t0, t0.Add(time.Hour))))

	first, err := repos.Auctions.GetAuction(ctx, "a1")
	require.NoError(t, err)
	second, err := repos.Auctions.GetAuction(ctx, "a1")
	require.NoError(t, err)

	first.Title = "first"
	require.NoError(t, repos.Auctions.UpdateAuction(ctx, first))
	require.Equal(t, int64(2), first.Version)

	second.Title = "second"
	require.ErrorIs(t, repos.Auctions.UpdateAuction(ctx, second), domain.ErrPersistence)

	got, err := repos.Auctions.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "first", got.Title)
}

func TestAuctionRepo_ListDue(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()
	now := t0

	seed := []*domain.Auction{
		newAuction("pending-due", domain.AuctionPending, now.Add(-time.Minute), now.Add(time.Hour*5)),
		newAuction("pending-later", domain.AuctionPending, now.Add(time.Minute), now.Add(time.Hour*5)),
		newAuction("open-ending", domain.AuctionOpen, now.Add(-time.Hour), now.Add(30*time.Minute)),
		newAuction("open-ended", domain.AuctionOpen, now.Add(-time.Hour), now.Add(-time.Minute)),
		newAuction("open-far", domain.AuctionOpen, now.Add(-time.Hour), now.Add(5*time.Hour)),
		newAuction("closed", domain.AuctionClosed, now.Add(-5*time.Hour), now.Add(-time.Hour)),
	}
	for _, a := range seed {
		require.NoError(t, repos.Auctions.CreateAuction(ctx, a))
	}

	due, err := repos.Auctions.ListDue(ctx, now, time.Hour)
	require.NoError(t, err)

	var ids []string
	for _, a := range due {
		ids = append(ids, a.ID)
	}
	require.ElementsMatch(t, []string{"pending-due", "open-ending", "open-ended"}, ids)
}

func TestOfferRepo_OneOfferPerSellerAndAuction(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()

	require.NoError(t, repos.Offers.CreateOffer(ctx, &domain.Offer{ID: "o1", AuctionID: "a1", SellerID: "s1", SubmittedAt: t0}))
	err := repos.Offers.CreateOffer(ctx, &domain.Offer{ID: "o2", AuctionID: "a1", SellerID: "s1", SubmittedAt: t0})
	require.ErrorIs(t, err, domain.ErrDuplicateEntity)
	require.NoError(t, repos.Offers.CreateOffer(ctx, &domain.Offer{ID: "o3", AuctionID: "a2", SellerID: "s1", SubmittedAt: t0}))

	exists, err := repos.Offers.ExistsBySeller(ctx, "a1", "s1")
	require.NoError(t, err)
	require.True(t, exists)

	n, err := repos.Offers.CountByAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	mine, err := repos.Offers.ListBySeller(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
}

func TestSubscriptionRepo(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()

	require.NoError(t, repos.Subscriptions.AddSubscription(ctx, &domain.Subscription{AuctionID: "a1", UserID: "u2"}))
	require.NoError(t, repos.Subscriptions.AddSubscription(ctx, &domain.Subscription{AuctionID: "a1", UserID: "u1"}))
	require.ErrorIs(t, repos.Subscriptions.AddSubscription(ctx, &domain.Subscription{AuctionID: "a1", UserID: "u1"}), domain.ErrDuplicateEntity)

	users, err := repos.Subscriptions.ListSubscribers(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, users)

	removed, err := repos.Subscriptions.RemoveSubscription(ctx, "a1", "u1")
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = repos.Subscriptions.RemoveSubscription(ctx, "a1", "u1")
	require.NoError(t, err)
	require.False(t, removed)

	require.NoError(t, repos.Subscriptions.DeleteByAuction(ctx, "a1"))
	users, err = repos.Subscriptions.ListSubscribers(ctx, "a1")
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestStore_ConcurrentTransactionsAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Repositories().Auctions.CreateAuction(ctx, newAuction("a1", domain.AuctionPending, t0, t0.Add(time.Hour))))

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
				a, err := repos.Auctions.GetAuctionForUpdate(ctx, "a1")
				if err != nil {
					return err
				}
				a.RequestedDeliveryDays++
				return repos.Auctions.UpdateAuction(ctx, a)
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Repositories().Auctions.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 10+writers, got.RequestedDeliveryDays)
	require.Equal(t, int64(1+writers), got.Version)
}

func TestReminderLedger_MarksOncePerAuction(t *testing.T) {
	ctx := context.Background()
	ledger := NewReminderLedger()
	ledger.now = func() time.Time { return t0 }

	first, err := ledger.MarkEndingSoon(ctx, "a1", t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, first)

	again, err := ledger.MarkEndingSoon(ctx, "a1", t0.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, again)

	ledger.now = func() time.Time { return t0.Add(2 * time.Hour) }
	afterExpiry, err := ledger.MarkEndingSoon(ctx, "a1", t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, afterExpiry)
}
