// Package ledger implements the persistent quality score and the policy
// engine that folds worker quality events into it.
package ledger

import (
	"fmt"

	"github.com/taskroute/engine/internal/domain"
)

// Ledger holds the point balance, lifetime counters, and append-only
// history. It is not safe for concurrent use on its own; the Policy engine
// serializes all mutations behind a single mutex.
type Ledger struct {
	balance        int
	lifetimeEarned int
	lifetimeLost   int
	history        []domain.LedgerEntry
	pendingQuest   *domain.RedemptionQuest
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Replay reconstructs a ledger from a persisted history, oldest first.
// The balance and lifetime counters are derived entirely from the entries.
func Replay(entries []domain.LedgerEntry) *Ledger {
	l := NewLedger()
	for _, e := range entries {
		l.append(e)
	}
	return l
}

// append applies one entry to the running state.
func (l *Ledger) append(e domain.LedgerEntry) {
	l.balance += e.Delta
	if e.Delta > 0 {
		l.lifetimeEarned += e.Delta
	} else {
		l.lifetimeLost += -e.Delta
	}
	l.history = append(l.history, e)
}

// Balance returns the current signed point balance.
func (l *Ledger) Balance() int { return l.balance }

// LifetimeEarned returns the sum of all positive deltas ever applied.
func (l *Ledger) LifetimeEarned() int { return l.lifetimeEarned }

// LifetimeLost returns the sum of magnitudes of all negative deltas.
func (l *Ledger) LifetimeLost() int { return l.lifetimeLost }

// Standing returns the tier derived from the current balance.
func (l *Ledger) Standing() domain.StandingTier { return domain.TierFor(l.balance) }

// History returns a copy of the append-only entry sequence.
func (l *Ledger) History() []domain.LedgerEntry {
	return append([]domain.LedgerEntry(nil), l.history...)
}

// PendingQuest returns a copy of the active redemption quest, or nil.
func (l *Ledger) PendingQuest() *domain.RedemptionQuest {
	if l.pendingQuest == nil {
		return nil
	}
	q := *l.pendingQuest
	q.RequiredConditions = append([]string(nil), l.pendingQuest.RequiredConditions...)
	q.SatisfiedConditions = append([]string(nil), l.pendingQuest.SatisfiedConditions...)
	return &q
}

// CheckInvariant verifies that the balance and lifetime counters equal the
// sums over the history. Used by tests and by startup reconciliation.
func (l *Ledger) CheckInvariant() error {
	var sum, earned, lost int
	for _, e := range l.history {
		sum += e.Delta
		if e.Delta > 0 {
			earned += e.Delta
		} else {
			lost += -e.Delta
		}
	}
	if sum != l.balance || earned != l.lifetimeEarned || lost != l.lifetimeLost {
		return domain.NewEngineError(
			domain.ErrLedgerInconsistent.Code,
			fmt.Sprintf("balance %d vs history sum %d (earned %d/%d, lost %d/%d)",
				l.balance, sum, l.lifetimeEarned, earned, l.lifetimeLost, lost),
		)
	}
	return nil
}
