package domain

import (
	"fmt"
	"time"
)

type Auction struct {
	ID                    string
	Title                 string
	Description           string
	OwnerID               string
	CategoryIDs           []string
	StartDate             time.Time
	EndDate               time.Time
	RequestedDeliveryDays int
	Status                AuctionStatus
	WinnerID              string
	// Version is bumped on every successful write and guards concurrent updates.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a copy that shares no slices with a.
func (a *Auction) Clone() *Auction {
	c := *a
	if a.CategoryIDs != nil {
		c.CategoryIDs = append([]string(nil), a.CategoryIDs...)
	}
	return &c
}

func (a *Auction) HasWinner() bool {
	return a.WinnerID != ""
}

type AuctionStatus int

const (
	AuctionPending AuctionStatus = iota
	AuctionOpen
	AuctionClosed
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionPending:
		return "PENDING"
	case AuctionOpen:
		return "OPEN"
	case AuctionClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func ParseAuctionStatus(s string) (AuctionStatus, error) {
	switch s {
	case "PENDING", "pending":
		return AuctionPending, nil
	case "OPEN", "open":
		return AuctionOpen, nil
	case "CLOSED", "closed":
		return AuctionClosed, nil
	}
	return 0, fmt.Errorf("%w: unknown auction status %q", ErrValidation, s)
}

// AuctionDraft carries the caller-editable fields of an auction.
type AuctionDraft struct {
	Title                 string
	Description           string
	CategoryIDs           []string
	StartDate             time.Time
	EndDate               time.Time
	RequestedDeliveryDays int
}

type Offer struct {
	ID                   string
	AuctionID            string
	SellerID             string
	Price                float64
	ProposedDeliveryDays int
	SubmittedAt          time.Time
	UpdatedAt            time.Time
}

type OfferDraft struct {
	Price                float64
	ProposedDeliveryDays int
}

// RankedOffer is an offer with its score against the current offer set. Never stored.
type RankedOffer struct {
	Offer            Offer
	Rank             int
	Score            float64
	PriceScore       float64
	DeliveryScore    float64
	ReputationScore  float64
	SellerReputation float64
}

type Subscription struct {
	AuctionID string
	UserID    string
	CreatedAt time.Time
}

// StatusChange is one entry of an auction's lifecycle history.
type StatusChange struct {
	AuctionID string
	From      AuctionStatus
	To        AuctionStatus
	Cause     ChangeCause
	At        time.Time
}

type ChangeCause string

const (
	CauseCreated   ChangeCause = "created"
	CauseUpdated   ChangeCause = "updated"
	CauseScheduler ChangeCause = "scheduler"
)

type AuctionDetails struct {
	Auction    Auction
	OfferCount int
	Subscribed bool
	History    []StatusChange
}

type EventKind string

const (
	EventOpened         EventKind = "auction_opened"
	EventClosed         EventKind = "auction_closed"
	EventEndingSoon     EventKind = "auction_ending_soon"
	EventOfferReceived  EventKind = "offer_received"
	EventWinnerAssigned EventKind = "winner_assigned"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventOpened, EventClosed, EventEndingSoon, EventOfferReceived, EventWinnerAssigned:
		return true
	}
	return false
}

// Notification is the wire form of one event addressed to one user.
type Notification struct {
	Kind         EventKind `json:"type"`
	AuctionID    string    `json:"auction_id"`
	AuctionTitle string    `json:"auction_title"`
	Status       string    `json:"status"`
	UserID       string    `json:"user_id"`
	EndDate      time.Time `json:"end_date"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewNotification(kind EventKind, auction *Auction, userID string, at time.Time) Notification {
	return Notification{
		Kind:         kind,
		AuctionID:    auction.ID,
		AuctionTitle: auction.Title,
		Status:       auction.Status.String(),
		UserID:       userID,
		EndDate:      auction.EndDate,
		Timestamp:    at,
	}
}
