// Package budget tracks the caller's bounded context resource.
package budget

import (
	"sync"

	"github.com/taskroute/engine/internal/domain"
)

// Band thresholds, in fullness percent.
const (
	selectiveThreshold = 50
	delegateThreshold  = 70
	blockedThreshold   = 90
)

// ContextBudget tracks a 0-100% fullness resource consumed by direct work
// and bypassed by delegation. One instance exists per active session;
// budgets handed to workers via Delegate are independent and never shared.
type ContextBudget struct {
	mu       sync.Mutex
	fullness int
}

// New creates an empty budget.
func New() *ContextBudget {
	return &ContextBudget{}
}

// Fullness returns the current fullness percent.
func (b *ContextBudget) Fullness() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fullness
}

// Band returns the policy band for the current fullness.
func (b *ContextBudget) Band() domain.BudgetBand {
	return BandFor(b.Fullness())
}

// BandFor returns the policy band for a fullness percent.
func BandFor(fullness int) domain.BudgetBand {
	switch {
	case fullness > blockedThreshold:
		return domain.BandBlocked
	case fullness > delegateThreshold:
		return domain.BandDelegateOnly
	case fullness >= selectiveThreshold:
		return domain.BandSelective
	default:
		return domain.BandNormal
	}
}

// Charge records a direct (non-delegated) action of the given weight and
// returns the new fullness. Attempting a direct action while fullness is
// above 90% fails with ErrBudgetExceeded: the caller must delegate or
// archive the session instead.
func (b *ContextBudget) Charge(weight int) (int, error) {
	if weight <= 0 {
		return 0, domain.ErrInvalidChargeWeight
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fullness > blockedThreshold {
		return b.fullness, domain.ErrBudgetExceeded
	}

	b.fullness = clamp(b.fullness + weight)
	return b.fullness, nil
}

// Delegate hands a unit of work to a worker. The caller's budget is not
// charged; instead the worker gets a fresh, independent budget seeded at 0.
// Delegation trades caller-context growth for a bounded worker-context cost.
func (b *ContextBudget) Delegate(hint domain.CostHint) *ContextBudget {
	return New()
}

// Reset sets fullness back to 0, used when archiving or restarting a session.
func (b *ContextBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fullness = 0
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
