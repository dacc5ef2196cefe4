package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sidecarlabs/agora/internal/invoke"
	"github.com/sidecarlabs/agora/pkg/models"
)

// ErrSkippedDependency indicates a subtask was never dispatched because a
// dependency failed.
var ErrSkippedDependency = errors.New("skipped due to failed dependency")

// Ledger is the append-only spend record for one orchestration run. Funds
// are reserved at a subtask's ceiling price before dispatch and the unused
// remainder is released when the subtask settles, so concurrent workers can
// never overshoot the ceiling between check and spend.
type Ledger struct {
	mu       sync.Mutex
	ceiling  models.Money
	spent    models.Money
	reserved map[string]models.Money
	entries  []models.LedgerEntry
}

// NewLedger creates a ledger with the given budget ceiling.
func NewLedger(ceiling models.Money) *Ledger {
	return &Ledger{
		ceiling:  ceiling,
		spent:    models.NewMoney(0, ceiling.Currency),
		reserved: make(map[string]models.Money),
	}
}

// Reserve holds amount against the ceiling for subtaskID. It fails when
// spent plus all outstanding reservations plus amount would exceed the
// ceiling, which is how an unfundable subtask is detected before dispatch.
func (l *Ledger) Reserve(subtaskID string, amount models.Money) error {
	if amount.Currency != l.ceiling.Currency {
		return fmt.Errorf("reserve %s: currency %s does not match ledger currency %s",
			subtaskID, amount.Currency, l.ceiling.Currency)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	committed := l.spent
	for _, r := range l.reserved {
		committed = committed.Add(r)
	}
	if l.ceiling.LessThan(committed.Add(amount)) {
		return fmt.Errorf("reserve %s for %s: %w", amount, subtaskID, invoke.ErrBudgetExceeded)
	}

	l.reserved[subtaskID] = amount
	return nil
}

// Release drops the reservation for subtaskID without recording spend.
func (l *Ledger) Release(subtaskID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reserved, subtaskID)
}

// Commit settles subtaskID: the actual cost is recorded, the reservation's
// unused remainder is released, and a ledger entry is appended.
func (l *Ledger) Commit(subtaskID, serviceID string, cost models.Money, status models.SubtaskStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.reserved, subtaskID)
	l.spent = l.spent.Add(cost)
	l.entries = append(l.entries, models.LedgerEntry{
		SubtaskID:  subtaskID,
		ServiceID:  serviceID,
		Cost:       cost,
		Status:     status,
		RecordedAt: time.Now(),
	})
}

// RecordSkip appends a zero-cost entry for a subtask that was never
// dispatched.
func (l *Ledger) RecordSkip(subtaskID string) {
	l.Commit(subtaskID, "", models.NewMoney(0, l.ceiling.Currency), models.SubtaskSkipped)
}

// Total returns the amount spent so far.
func (l *Ledger) Total() models.Money {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}

// Remaining returns the uncommitted, unreserved headroom under the ceiling.
func (l *Ledger) Remaining() models.Money {
	l.mu.Lock()
	defer l.mu.Unlock()

	committed := l.spent
	for _, r := range l.reserved {
		committed = committed.Add(r)
	}
	return l.ceiling.Sub(committed)
}

// Ceiling returns the configured budget ceiling.
func (l *Ledger) Ceiling() models.Money {
	return l.ceiling
}

// Entries returns a copy of the entries appended so far.
func (l *Ledger) Entries() []models.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
