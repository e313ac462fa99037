package memory

import (
	"context"
	"sync"
	"time"
)

// ReminderLedger is the in-process domain.ReminderLedger. Marks expire at their deadline.
type ReminderLedger struct {
	mu    sync.Mutex
	marks map[string]time.Time
	now   func() time.Time
}

func NewReminderLedger() *ReminderLedger {
	return &ReminderLedger{marks: make(map[string]time.Time), now: time.Now}
}

func (l *ReminderLedger) MarkEndingSoon(ctx context.Context, auctionID string, until time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, exp := range l.marks {
		if !exp.After(now) {
			delete(l.marks, id)
		}
	}

	if _, ok := l.marks[auctionID]; ok {
		return false, nil
	}
	l.marks[auctionID] = until
	return true, nil
}

// Reputations is a fixed, in-process domain.ReputationProvider.
type Reputations struct {
	mu     sync.RWMutex
	values map[string]float64
}

func NewReputations(values map[string]float64) *Reputations {
	r := &Reputations{values: make(map[string]float64, len(values))}
	for k, v := range values {
		r.values[k] = v
	}
	return r
}

func (r *Reputations) Set(sellerID string, reputation float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[sellerID] = reputation
}

func (r *Reputations) Reputations(ctx context.Context, sellerIDs []string) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64, len(sellerIDs))
	for _, id := range sellerIDs {
		if v, ok := r.values[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}
