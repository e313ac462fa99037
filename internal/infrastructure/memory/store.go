package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"freelance-market/internal/domain"
)

type subKey struct {
	auctionID string
	userID    string
}

type state struct {
	auctions map[string]*domain.Auction
	offers   map[string]*domain.Offer
	subs     map[subKey]domain.Subscription
	history  []domain.StatusChange
}

func newState() *state {
	return &state{
		auctions: make(map[string]*domain.Auction),
		offers:   make(map[string]*domain.Offer),
		subs:     make(map[subKey]domain.Subscription),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, a := range s.auctions {
		c.auctions[id] = a.Clone()
	}
	for id, o := range s.offers {
		cp := *o
		c.offers[id] = &cp
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	c.history = append([]domain.StatusChange(nil), s.history...)
	return c
}

// Store is a concurrency-safe in-memory implementation of domain.Store.
// Transactions run one at a time against a private copy that replaces the
// shared state on commit.
type Store struct {
	mu sync.RWMutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Repositories() domain.Repositories {
	return s.reposFor(nil)
}

func (s *Store) WithinTx(ctx context.Context, fn domain.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, s.reposFor(work)); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) reposFor(tx *state) domain.Repositories {
	v := &view{store: s, tx: tx}
	return domain.Repositories{
		Auctions:      (*auctionRepo)(v),
		Offers:        (*offerRepo)(v),
		Subscriptions: (*subscriptionRepo)(v),
		History:       (*historyRepo)(v),
	}
}

// view reads and writes either a transaction's private state or the shared one under the lock.
type view struct {
	store *Store
	tx    *state
}

func (v *view) read(fn func(st *state)) {
	if v.tx != nil {
		fn(v.tx)
		return
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	fn(v.store.st)
}

func (v *view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

type auctionRepo view

func (r *auctionRepo) v() *view { return (*view)(r) }

func (r *auctionRepo) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	return r.v().write(func(st *state) error {
		if _, ok := st.auctions[auction.ID]; ok {
			return fmt.Errorf("create auction %s: %w", auction.ID, domain.ErrDuplicateEntity)
		}
		auction.Version = 1
		st.auctions[auction.ID] = auction.Clone()
		return nil
	})
}

func (r *auctionRepo) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	var out *domain.Auction
	r.v().read(func(st *state) {
		if a, ok := st.auctions[auctionID]; ok {
			out = a.Clone()
		}
	})
	if out == nil {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, domain.ErrNotFound)
	}
	return out, nil
}

// GetAuctionForUpdate needs no extra locking: transactions are already serialized.
func (r *auctionRepo) GetAuctionForUpdate(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return r.GetAuction(ctx, auctionID)
}

func (r *auctionRepo) UpdateAuction(ctx context.Context, auction *domain.Auction) error {
	return r.v().write(func(st *state) error {
		current, ok := st.auctions[auction.ID]
		if !ok {
			return fmt.Errorf("update auction %s: %w", auction.ID, domain.ErrNotFound)
		}
		if current.Version != auction.Version {
			return fmt.Errorf("update auction %s: version %d is stale (current %d): %w",
				auction.ID, auction.Version, current.Version, domain.ErrPersistence)
		}
		auction.Version++
		st.auctions[auction.ID] = auction.Clone()
		return nil
	})
}

func (r *auctionRepo) DeleteAuction(ctx context.Context, auctionID string) error {
	return r.v().write(func(st *state) error {
		if _, ok := st.auctions[auctionID]; !ok {
			return fmt.Errorf("delete auction %s: %w", auctionID, domain.ErrNotFound)
		}
		delete(st.auctions, auctionID)
		return nil
	})
}

func (r *auctionRepo) list(match func(a *domain.Auction) bool) []*domain.Auction {
	var out []*domain.Auction
	r.v().read(func(st *state) {
		for _, a := range st.auctions {
			if match(a) {
				out = append(out, a.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *auctionRepo) ListByStatus(ctx context.Context, status domain.AuctionStatus) ([]*domain.Auction, error) {
	return r.list(func(a *domain.Auction) bool { return a.Status == status }), nil
}

func (r *auctionRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Auction, error) {
	return r.list(func(a *domain.Auction) bool { return a.OwnerID == ownerID }), nil
}

func (r *auctionRepo) ListDue(ctx context.Context, now time.Time, endingSoonWindow time.Duration) ([]*domain.Auction, error) {
	horizon := now.Add(endingSoonWindow)
	return r.list(func(a *domain.Auction) bool {
		switch a.Status {
		case domain.AuctionPending:
			return !a.StartDate.After(now)
		case domain.AuctionOpen:
			return !a.EndDate.After(horizon)
		}
		return false
	}), nil
}

type offerRepo view

func (r *offerRepo) v() *view { return (*view)(r) }

func (r *offerRepo) CreateOffer(ctx context.Context, offer *domain.Offer) error {
	return r.v().write(func(st *state) error {
		for _, o := range st.offers {
			if o.AuctionID == offer.AuctionID && o.SellerID == offer.SellerID {
				return fmt.Errorf("create offer by %s on %s: %w", offer.SellerID, offer.AuctionID, domain.ErrDuplicateEntity)
			}
		}
		cp := *offer
		st.offers[offer.ID] = &cp
		return nil
	})
}

func (r *offerRepo) GetOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	var out *domain.Offer
	r.v().read(func(st *state) {
		if o, ok := st.offers[offerID]; ok {
			cp := *o
			out = &cp
		}
	})
	if out == nil {
		return nil, fmt.Errorf("get offer %s: %w", offerID, domain.ErrNotFound)
	}
	return out, nil
}

func (r *offerRepo) UpdateOffer(ctx context.Context, offer *domain.Offer) error {
	return r.v().write(func(st *state) error {
		if _, ok := st.offers[offer.ID]; !ok {
			return fmt.Errorf("update offer %s: %w", offer.ID, domain.ErrNotFound)
		}
		cp := *offer
		st.offers[offer.ID] = &cp
		return nil
	})
}

func (r *offerRepo) DeleteOffer(ctx context.Context, offerID string) error {
	return r.v().write(func(st *state) error {
		if _, ok := st.offers[offerID]; !ok {
			return fmt.Errorf("delete offer %s: %w", offerID, domain.ErrNotFound)
		}
		delete(st.offers, offerID)
		return nil
	})
}

func (r *offerRepo) list(match func(o *domain.Offer) bool) []*domain.Offer {
	var out []*domain.Offer
	r.v().read(func(st *state) {
		for _, o := range st.offers {
			if match(o) {
				cp := *o
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

func (r *offerRepo) ListByAuction(ctx context.Context, auctionID string) ([]*domain.Offer, error) {
	return r.list(func(o *domain.Offer) bool { return o.AuctionID == auctionID }), nil
}

func (r *offerRepo) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Offer, error) {
	return r.list(func(o *domain.Offer) bool { return o.SellerID == sellerID }), nil
}

func (r *offerRepo) ExistsBySeller(ctx context.Context, auctionID, sellerID string) (bool, error) {
	offers := r.list(func(o *domain.Offer) bool { return o.AuctionID == auctionID && o.SellerID == sellerID })
	return len(offers) > 0, nil
}

func (r *offerRepo) CountByAuction(ctx context.Context, auctionID string) (int, error) {
	return len(r.list(func(o *domain.Offer) bool { return o.AuctionID == auctionID })), nil
}

type subscriptionRepo view

func (r *subscriptionRepo) v() *view { return (*view)(r) }

func (r *subscriptionRepo) AddSubscription(ctx context.Context, sub *domain.Subscription) error {
	return r.v().write(func(st *state) error {
		key := subKey{sub.AuctionID, sub.UserID}
		if _, ok := st.subs[key]; ok {
			return fmt.Errorf("subscribe %s to %s: %w", sub.UserID, sub.AuctionID, domain.ErrDuplicateEntity)
		}
		st.subs[key] = *sub
		return nil
	})
}

func (r *subscriptionRepo) RemoveSubscription(ctx context.Context, auctionID, userID string) (bool, error) {
	var removed bool
	err := r.v().write(func(st *state) error {
		key := subKey{auctionID, userID}
		_, removed = st.subs[key]
		delete(st.subs, key)
		return nil
	})
	return removed, err
}

func (r *subscriptionRepo) Exists(ctx context.Context, auctionID, userID string) (bool, error) {
	var ok bool
	r.v().read(func(st *state) {
		_, ok = st.subs[subKey{auctionID, userID}]
	})
	return ok, nil
}

func (r *subscriptionRepo) ListSubscribers(ctx context.Context, auctionID string) ([]string, error) {
	var users []string
	r.v().read(func(st *state) {
		for k := range st.subs {
			if k.auctionID == auctionID {
				users = append(users, k.userID)
			}
		}
	})
	sort.Strings(users)
	return users, nil
}

func (r *subscriptionRepo) DeleteByAuction(ctx context.Context, auctionID string) error {
	return r.v().write(func(st *state) error {
		for k := range st.subs {
			if k.auctionID == auctionID {
				delete(st.subs, k)
			}
		}
		return nil
	})
}

type historyRepo view

func (r *historyRepo) v() *view { return (*view)(r) }

func (r *historyRepo) AppendStatusChange(ctx context.Context, change *domain.StatusChange) error {
	return r.v().write(func(st *state) error {
		st.history = append(st.history, *change)
		return nil
	})
}

func (r *historyRepo) ListStatusChanges(ctx context.Context, auctionID string) ([]domain.StatusChange, error) {
	var out []domain.StatusChange
	r.v().read(func(st *state) {
		for _, c := range st.history {
			if c.AuctionID == auctionID {
				out = append(out, c)
			}
		}
	})
	return out, nil
}
