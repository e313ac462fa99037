package domain

import (
	"fmt"
	"math"
	"time"
)

// Bounds of the stored columns: prices are DECIMAL(15,2), day counts INT.
const (
	MinOfferPrice = 0.01
	MaxOfferPrice = 9999999999999.99
	MaxDays       = math.MaxInt32
)

// RoundPrice rounds p to whole cents, the precision prices are stored at.
func RoundPrice(p float64) float64 {
	return math.Round(p*100) / 100
}

// Transition is one step of the auction lifecycle. From == To means an
// announcement without a status change (ending soon).
type Transition struct {
	From  AuctionStatus
	To    AuctionStatus
	Event EventKind
}

func (t Transition) ChangesStatus() bool {
	return t.From != t.To
}

// transitions is the complete table; anything not listed is rejected.
var transitions = map[AuctionStatus]Transition{
	AuctionPending: {From: AuctionPending, To: AuctionOpen, Event: EventOpened},
	AuctionOpen:    {From: AuctionOpen, To: AuctionClosed, Event: EventClosed},
}

// InitialStatus is the status of an auction created (or rescheduled) at now.
func InitialStatus(start, now time.Time) AuctionStatus {
	if start.After(now) {
		return AuctionPending
	}
	return AuctionOpen
}

func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	t, ok := transitions[s]
	return ok && t.To == next
}

// NextTransition decides the single lifecycle step due for a at now. The
// ending soon announcement only applies when no status change is due.
func NextTransition(a *Auction, now time.Time, endingSoonWindow time.Duration) (Transition, bool) {
	switch a.Status {
	case AuctionPending:
		if !a.StartDate.After(now) {
			return transitions[AuctionPending], true
		}
	case AuctionOpen:
		if !a.EndDate.After(now) {
			return transitions[AuctionOpen], true
		}
		if endingSoonWindow > 0 && !a.EndDate.Add(-endingSoonWindow).After(now) {
			return Transition{From: AuctionOpen, To: AuctionOpen, Event: EventEndingSoon}, true
		}
	}
	return Transition{}, false
}

// Advance moves a to next following the transition table.
func (a *Auction) Advance(next AuctionStatus, now time.Time) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: auction %s cannot move from %s to %s", ErrInvalidState, a.ID, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// Reschedule recomputes the status after the dates changed. Status only moves forward.
func (a *Auction) Reschedule(now time.Time) (StatusChange, bool) {
	next := InitialStatus(a.StartDate, now)
	if next == a.Status || !a.Status.CanTransitionTo(next) {
		return StatusChange{}, false
	}
	change := StatusChange{AuctionID: a.ID, From: a.Status, To: next, Cause: CauseUpdated, At: now}
	a.Status = next
	return change, true
}

func RequireStatus(a *Auction, want AuctionStatus) error {
	if a.Status != want {
		return fmt.Errorf("%w: auction %s is %s, operation requires %s", ErrInvalidState, a.ID, a.Status, want)
	}
	return nil
}

func RequireOwner(a *Auction, actorID string) error {
	if a.OwnerID != actorID {
		return fmt.Errorf("%w: user %s does not own auction %s", ErrOwnershipViolation, actorID, a.ID)
	}
	return nil
}

func RequireNotOwner(a *Auction, actorID string) error {
	if a.OwnerID == actorID {
		return fmt.Errorf("%w: user %s owns auction %s", ErrOwnershipViolation, actorID, a.ID)
	}
	return nil
}

// RequireMutable guards update and delete: PENDING first, then ownership.
func RequireMutable(a *Auction, actorID string) error {
	if err := RequireStatus(a, AuctionPending); err != nil {
		return err
	}
	return RequireOwner(a, actorID)
}

func (d AuctionDraft) Validate() error {
	if d.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !d.StartDate.Before(d.EndDate) {
		return fmt.Errorf("%w: start date %s must be before end date %s",
			ErrValidation, d.StartDate.Format(time.RFC3339), d.EndDate.Format(time.RFC3339))
	}
	if d.RequestedDeliveryDays <= 0 || d.RequestedDeliveryDays > MaxDays {
		return fmt.Errorf("%w: requested delivery days must be between 1 and %d, got %d",
			ErrValidation, MaxDays, d.RequestedDeliveryDays)
	}
	return nil
}

func (d OfferDraft) Validate() error {
	if math.IsNaN(d.Price) || RoundPrice(d.Price) < MinOfferPrice || RoundPrice(d.Price) > MaxOfferPrice {
		return fmt.Errorf("%w: price must be between %.2f and %.2f, got %v",
			ErrValidation, MinOfferPrice, MaxOfferPrice, d.Price)
	}
	if d.ProposedDeliveryDays <= 0 || d.ProposedDeliveryDays > MaxDays {
		return fmt.Errorf("%w: proposed delivery days must be between 1 and %d, got %d",
			ErrValidation, MaxDays, d.ProposedDeliveryDays)
	}
	return nil
}
