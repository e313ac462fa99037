package services

import (
	"context"
	"fmt"
	"time"

	"freelance-market/internal/domain"
	"freelance-market/pkg/logger"
	"freelance-market/pkg/utils"
)

// AuctionService is the entry point for every user-initiated auction and
// offer operation. Each mutation reads the auction under lock, checks the
// invariants and writes within one transaction.
type AuctionService struct {
	store         domain.Store
	subscriptions *SubscriptionRegistry
	notifier      *LifecycleNotifier
	ranker        *OfferRanker
	reputations   domain.ReputationProvider
	now           func() time.Time
	log           logger.Logger
}

func NewAuctionService(
	store domain.Store,
	subscriptions *SubscriptionRegistry,
	notifier *LifecycleNotifier,
	ranker *OfferRanker,
	reputations domain.ReputationProvider,
	log logger.Logger,
) *AuctionService {
	return &AuctionService{
		store:         store,
		subscriptions: subscriptions,
		notifier:      notifier,
		ranker:        ranker,
		reputations:   reputations,
		now:           time.Now,
		log:           log,
	}
}

func (s *AuctionService) CreateAuction(ctx context.Context, ownerID string, draft domain.AuctionDraft) (*domain.Auction, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("service: create auction: %w: owner is required", domain.ErrValidation)
	}
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("service: create auction: %w", err)
	}

	now := s.now()
	auction := &domain.Auction{
		ID:        utils.GenerateID("auction"),
		OwnerID:   ownerID,
		Status:    domain.InitialStatus(draft.StartDate, now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyDraft(auction, draft)

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Auctions.CreateAuction(ctx, auction); err != nil {
			return err
		}
		return repos.History.AppendStatusChange(ctx, &domain.StatusChange{
			AuctionID: auction.ID,
			From:      auction.Status,
			To:        auction.Status,
			Cause:     domain.CauseCreated,
			At:        now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("service: create auction: %w", err)
	}

	s.log.Info("Auction created", "auction_id", auction.ID, "owner_id", ownerID, "status", auction.Status)
	return auction, nil
}

// UpdateAuction replaces the editable fields of a PENDING auction. New dates
// can open the auction right away.
func (s *AuctionService) UpdateAuction(ctx context.Context, actorID, auctionID string, draft domain.AuctionDraft) (*domain.Auction, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("service: update auction %s: %w", auctionID, err)
	}

	var (
		updated *domain.Auction
		opened  bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		auction, err := repos.Auctions.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := domain.RequireMutable(auction, actorID); err != nil {
			return err
		}

		now := s.now()
		applyDraft(auction, draft)
		auction.UpdatedAt = now
		change, changed := auction.Reschedule(now)

		if err := repos.Auctions.UpdateAuction(ctx, auction); err != nil {
			return err
		}
		if changed {
			if err := repos.History.AppendStatusChange(ctx, &change); err != nil {
				return err
			}
		}
		updated, opened = auction, changed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service: update auction %s: %w", auctionID, err)
	}

	if opened {
		s.notifier.Announce(ctx, domain.EventOpened, updated)
	}
	s.log.Info("Auction updated", "auction_id", auctionID, "status", updated.Status)
	return updated, nil
}

func (s *AuctionService) DeleteAuction(ctx context.Context, actorID, auctionID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		auction, err := repos.Auctions.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := domain.RequireMutable(auction, actorID); err != nil {
			return err
		}
		if err := repos.Subscriptions.DeleteByAuction(ctx, auctionID); err != nil {
			return err
		}
		return repos.Auctions.DeleteAuction(ctx, auctionID)
	})
	if err != nil {
		return fmt.Errorf("service: delete auction %s: %w", auctionID, err)
	}

	s.log.Info("Auction deleted", "auction_id", auctionID)
	return nil
}

// GetAuctionDetails returns the auction with its offer count, lifecycle
// history and whether actorID follows it. actorID may be empty.
func (s *AuctionService) GetAuctionDetails(ctx context.Context, actorID, auctionID string) (*domain.AuctionDetails, error) {
	repos := s.store.Repositories()

	auction, err := repos.Auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: get auction %s: %w", auctionID, err)
	}
	count, err := repos.Offers.CountByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: count offers of %s: %w", auctionID, err)
	}
	history, err := repos.History.ListStatusChanges(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: history of %s: %w", auctionID, err)
	}

	details := &domain.AuctionDetails{Auction: *auction, OfferCount: count, History: history}
	if actorID != "" {
		if details.Subscribed, err = repos.Subscriptions.Exists(ctx, auctionID, actorID); err != nil {
			return nil, fmt.Errorf("service: check subscription on %s: %w", auctionID, err)
		}
	}
	return details, nil
}

func (s *AuctionService) ListByStatus(ctx context.Context, status domain.AuctionStatus) ([]*domain.Auction, error) {
	auctions, err := s.store.Repositories().Auctions.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("service: list %s auctions: %w", status, err)
	}
	return auctions, nil
}

func (s *AuctionService) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Auction, error) {
	auctions, err := s.store.Repositories().Auctions.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service: list auctions of %s: %w", ownerID, err)
	}
	return auctions, nil
}

func (s *AuctionService) Subscribe(ctx context.Context, actorID, auctionID string) error {
	return s.subscriptions.Subscribe(ctx, auctionID, actorID)
}

func (s *AuctionService) Unsubscribe(ctx context.Context, actorID, auctionID string) error {
	return s.subscriptions.Unsubscribe(ctx, auctionID, actorID)
}

func (s *AuctionService) IsSubscribed(ctx context.Context, actorID, auctionID string) (bool, error) {
	return s.subscriptions.IsSubscribed(ctx, auctionID, actorID)
}

// AssignWinner records winnerID on a CLOSED auction owned by actorID. The
// winner must be one of the sellers who placed an offer.
func (s *AuctionService) AssignWinner(ctx context.Context, actorID, auctionID, winnerID string) (*domain.Auction, error) {
	var updated *domain.Auction
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		auction, err := repos.Auctions.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := domain.RequireStatus(auction, domain.AuctionClosed); err != nil {
			return err
		}
		if err := domain.RequireOwner(auction, actorID); err != nil {
			return err
		}

		if winnerID == "" {
			return fmt.Errorf("%w: winner is required", domain.ErrValidation)
		}
		bid, err := repos.Offers.ExistsBySeller(ctx, auctionID, winnerID)
		if err != nil {
			return err
		}
		if !bid {
			return fmt.Errorf("%w: user %q has no offer on auction %s", domain.ErrValidation, winnerID, auctionID)
		}

		if auction.HasWinner() && auction.WinnerID != winnerID {
			s.log.Info("Replacing auction winner", "auction_id", auctionID, "previous_winner_id", auction.WinnerID)
		}
		auction.WinnerID = winnerID
		auction.UpdatedAt = s.now()
		if err := repos.Auctions.UpdateAuction(ctx, auction); err != nil {
			return err
		}
		updated = auction
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service: assign winner on %s: %w", auctionID, err)
	}

	s.notifier.NotifyUser(ctx, domain.EventWinnerAssigned, updated, winnerID)
	s.log.Info("Winner assigned", "auction_id", auctionID, "winner_id", winnerID)
	return updated, nil
}

// SubmitOffer places sellerID's single offer on an OPEN auction and
// subscribes the seller to its remaining lifecycle events.
func (s *AuctionService) SubmitOffer(ctx context.Context, sellerID, auctionID string, draft domain.OfferDraft) (*domain.Offer, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("service: submit offer on %s: %w", auctionID, err)
	}

	var (
		offer   *domain.Offer
		auction *domain.Auction
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		auction, err = repos.Auctions.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := domain.RequireStatus(auction, domain.AuctionOpen); err != nil {
			return err
		}
		if err := domain.RequireNotOwner(auction, sellerID); err != nil {
			return err
		}

		exists, err := repos.Offers.ExistsBySeller(ctx, auctionID, sellerID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: seller %s already has an offer on auction %s", domain.ErrDuplicateEntity, sellerID, auctionID)
		}

		now := s.now()
		offer = &domain.Offer{
			ID:                   utils.GenerateID("offer"),
			AuctionID:            auctionID,
			SellerID:             sellerID,
			Price:                domain.RoundPrice(draft.Price),
			ProposedDeliveryDays: draft.ProposedDeliveryDays,
			SubmittedAt:          now,
			UpdatedAt:            now,
		}
		if err := repos.Offers.CreateOffer(ctx, offer); err != nil {
			return err
		}
		s.subscriptions.ensureSubscribed(ctx, repos, auctionID, sellerID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service: submit offer on %s: %w", auctionID, err)
	}

	s.notifier.NotifyUser(ctx, domain.EventOfferReceived, auction, auction.OwnerID)
	s.log.Info("Offer submitted", "offer_id", offer.ID, "auction_id", auctionID, "seller_id", sellerID)
	return offer, nil
}

func (s *AuctionService) UpdateOffer(ctx context.Context, sellerID, offerID string, draft domain.OfferDraft) (*domain.Offer, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("service: update offer %s: %w", offerID, err)
	}

	var offer *domain.Offer
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		offer, err = s.lockOwnOffer(ctx, repos, sellerID, offerID)
		if err != nil {
			return err
		}
		offer.Price = domain.RoundPrice(draft.Price)
		offer.ProposedDeliveryDays = draft.ProposedDeliveryDays
		offer.UpdatedAt = s.now()
		return repos.Offers.UpdateOffer(ctx, offer)
	})
	if err != nil {
		return nil, fmt.Errorf("service: update offer %s: %w", offerID, err)
	}

	s.log.Info("Offer updated", "offer_id", offerID, "auction_id", offer.AuctionID)
	return offer, nil
}

// DeleteOffer withdraws the offer and the seller's subscription to its auction.
func (s *AuctionService) DeleteOffer(ctx context.Context, sellerID, offerID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		offer, err := s.lockOwnOffer(ctx, repos, sellerID, offerID)
		if err != nil {
			return err
		}
		if err := repos.Offers.DeleteOffer(ctx, offerID); err != nil {
			return err
		}
		_, err = repos.Subscriptions.RemoveSubscription(ctx, offer.AuctionID, sellerID)
		return err
	})
	if err != nil {
		return fmt.Errorf("service: delete offer %s: %w", offerID, err)
	}

	s.log.Info("Offer deleted", "offer_id", offerID, "seller_id", sellerID)
	return nil
}

// lockOwnOffer loads the offer, locks its auction and checks that the auction
// is still OPEN and the offer belongs to sellerID.
func (s *AuctionService) lockOwnOffer(ctx context.Context, repos domain.Repositories, sellerID, offerID string) (*domain.Offer, error) {
	offer, err := repos.Offers.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	auction, err := repos.Auctions.GetAuctionForUpdate(ctx, offer.AuctionID)
	if err != nil {
		return nil, err
	}
	if err := domain.RequireStatus(auction, domain.AuctionOpen); err != nil {
		return nil, err
	}
	if offer.SellerID != sellerID {
		return nil, fmt.Errorf("%w: offer %s does not belong to %s", domain.ErrOwnershipViolation, offerID, sellerID)
	}
	return offer, nil
}

// GetOffer returns the offer scored against the current offers of its auction.
func (s *AuctionService) GetOffer(ctx context.Context, offerID string) (*domain.RankedOffer, error) {
	offer, err := s.store.Repositories().Offers.GetOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("service: get offer %s: %w", offerID, err)
	}

	ranked, err := s.ListOffersRanked(ctx, offer.AuctionID)
	if err != nil {
		return nil, err
	}
	for i := range ranked {
		if ranked[i].Offer.ID == offerID {
			return &ranked[i], nil
		}
	}
	// withdrawn between the two reads
	return nil, fmt.Errorf("service: get offer %s: %w", offerID, domain.ErrNotFound)
}

func (s *AuctionService) ListOffersRanked(ctx context.Context, auctionID string) ([]domain.RankedOffer, error) {
	repos := s.store.Repositories()

	auction, err := repos.Auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: rank offers of %s: %w", auctionID, err)
	}
	offers, err := repos.Offers.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: rank offers of %s: %w", auctionID, err)
	}

	sellers := make([]string, 0, len(offers))
	for _, o := range offers {
		sellers = append(sellers, o.SellerID)
	}
	reputations, err := s.reputations.Reputations(ctx, sellers)
	if err != nil {
		return nil, fmt.Errorf("service: seller reputations for %s: %w", auctionID, err)
	}

	return s.ranker.Rank(auction, offers, reputations), nil
}

func (s *AuctionService) ListOffersBySeller(ctx context.Context, sellerID string) ([]*domain.Offer, error) {
	offers, err := s.store.Repositories().Offers.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("service: list offers of %s: %w", sellerID, err)
	}
	return offers, nil
}

func applyDraft(a *domain.Auction, d domain.AuctionDraft) {
	a.Title = d.Title
	a.Description = d.Description
	a.CategoryIDs = append([]string(nil), d.CategoryIDs...)
	a.StartDate = d.StartDate
	a.EndDate = d.EndDate
	a.RequestedDeliveryDays = d.RequestedDeliveryDays
}
