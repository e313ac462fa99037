package domain

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_ports.go -package=mocks freelance-market/internal/domain LeaderElection,NotificationGateway,ReminderLedger,ReputationProvider,UserNotifier

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	// GetAuctionForUpdate reads the auction and, inside a transaction, locks it until commit.
	GetAuctionForUpdate(ctx context.Context, auctionID string) (*Auction, error)
	// UpdateAuction writes all mutable fields if auction.Version still matches and bumps it.
	UpdateAuction(ctx context.Context, auction *Auction) error
	DeleteAuction(ctx context.Context, auctionID string) error
	ListByStatus(ctx context.Context, status AuctionStatus) ([]*Auction, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Auction, error)
	// ListDue returns PENDING auctions with start <= now and OPEN auctions with end - window <= now.
	ListDue(ctx context.Context, now time.Time, endingSoonWindow time.Duration) ([]*Auction, error)
}

type OfferRepository interface {
	CreateOffer(ctx context.Context, offer *Offer) error
	GetOffer(ctx context.Context, offerID string) (*Offer, error)
	UpdateOffer(ctx context.Context, offer *Offer) error
	DeleteOffer(ctx context.Context, offerID string) error
	ListByAuction(ctx context.Context, auctionID string) ([]*Offer, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*Offer, error)
	ExistsBySeller(ctx context.Context, auctionID, sellerID string) (bool, error)
	CountByAuction(ctx context.Context, auctionID string) (int, error)
}

type SubscriptionRepository interface {
	// AddSubscription fails with ErrDuplicateEntity when the pair already exists.
	AddSubscription(ctx context.Context, sub *Subscription) error
	RemoveSubscription(ctx context.Context, auctionID, userID string) (bool, error)
	Exists(ctx context.Context, auctionID, userID string) (bool, error)
	ListSubscribers(ctx context.Context, auctionID string) ([]string, error)
	DeleteByAuction(ctx context.Context, auctionID string) error
}

type HistoryRepository interface {
	AppendStatusChange(ctx context.Context, change *StatusChange) error
	ListStatusChanges(ctx context.Context, auctionID string) ([]StatusChange, error)
}

// Repositories is one consistent view over the stores, either plain or bound to a transaction.
type Repositories struct {
	Auctions      AuctionRepository
	Offers        OfferRepository
	Subscriptions SubscriptionRepository
	History       HistoryRepository
}

type TxFunc func(ctx context.Context, repos Repositories) error

// Store is the persistence boundary. WithinTx commits when fn returns nil and
// rolls back otherwise; auction rows read with GetAuctionForUpdate stay locked
// until then.
type Store interface {
	Repositories() Repositories
	WithinTx(ctx context.Context, fn TxFunc) error
}

type ReputationProvider interface {
	// Reputations returns the known reputations in [0,5]; unknown sellers are absent.
	Reputations(ctx context.Context, sellerIDs []string) (map[string]float64, error)
}

// Notification interfaces
type NotificationGateway interface {
	Send(ctx context.Context, kind EventKind, auction *Auction, userID string) error
}

type UserNotifier interface {
	NotifyUser(ctx context.Context, userID string, message interface{}) error
}

// ReminderLedger remembers which auctions already got their ending soon announcement.
type ReminderLedger interface {
	// MarkEndingSoon returns true only for the first call per auction.
	MarkEndingSoon(ctx context.Context, auctionID string, until time.Time) (bool, error)
}

// Event interfaces
type EventSubscriber interface {
	SubscribeToNotifications(ctx context.Context, handler NotificationHandler) error
}

type NotificationHandler func(ctx context.Context, n *Notification) error

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	ID() string
	Send(message interface{}) error
	Close() error
	UserID() string
}

type ConnectionManager interface {
	RegisterConnection(conn WebSocketConnection) error
	UnregisterConnection(conn WebSocketConnection) error
	GetConnectionsForUser(userID string) []WebSocketConnection
	NotifyUser(userID string, message interface{}) error
	CloseAll() error
}
