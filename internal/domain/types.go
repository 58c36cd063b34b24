// Package domain defines the core types for the task routing engine.
package domain

// CostHint is a worker's expected context/time consumption if selected.
type CostHint string

const (
	CostLight    CostHint = "light"
	CostStandard CostHint = "standard"
	CostHeavy    CostHint = "heavy"
)

// WorkerProfile is the routing-relevant metadata for one worker.
// Profiles are loaded once at startup and immutable thereafter; the
// worker's actual expertise is opaque to the engine.
type WorkerProfile struct {
	ID              string   `yaml:"id" json:"id"`
	DomainTags      []string `yaml:"domains" json:"domains"`
	CapabilityTags  []string `yaml:"capabilities" json:"capabilities"`
	ToolPermissions []string `yaml:"tool_permissions" json:"tool_permissions"`
	CostHint        CostHint `yaml:"cost_hint" json:"cost_hint"`
}

// HasCapability reports whether the profile carries the given capability tag.
func (p WorkerProfile) HasCapability(tag string) bool {
	for _, c := range p.CapabilityTags {
		if c == tag {
			return true
		}
	}
	return false
}

// HasDomain reports whether the profile carries the given domain tag.
func (p WorkerProfile) HasDomain(tag string) bool {
	for _, d := range p.DomainTags {
		if d == tag {
			return true
		}
	}
	return false
}

// TaskRequest is the input to one dispatch cycle.
type TaskRequest struct {
	Description string   `json:"description"`
	DomainHints []string `json:"domain_hints,omitempty"`
	// SizeEstimateLines is the caller's estimate of implied code volume.
	// Nil means no estimate was given.
	SizeEstimateLines *int `json:"size_estimate_lines,omitempty"`
}

// Complexity is the classifier's estimate of a task's scope.
type Complexity string

const (
	ComplexityTrivial Complexity = "trivial"
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
	ComplexityUnknown Complexity = "unknown"
)

// RoutingDecision is the classifier's output: which workers run, and how.
type RoutingDecision struct {
	// PrimaryWorkers run strictly in order.
	PrimaryWorkers []string `json:"primary_workers"`
	// ParallelGroups run after the primaries; each group's members run
	// concurrently, groups run in listed order.
	ParallelGroups [][]string `json:"parallel_groups,omitempty"`
	Complexity     Complexity `json:"complexity"`
	Rationale      string     `json:"rationale"`
}

// Empty reports whether the decision dispatches no workers at all
// (the "work directly" terminal outcome for trivial tasks).
func (d RoutingDecision) Empty() bool {
	return len(d.PrimaryWorkers) == 0 && len(d.ParallelGroups) == 0
}

// WorkerIDs returns every worker id referenced by the decision, primaries first.
func (d RoutingDecision) WorkerIDs() []string {
	ids := append([]string(nil), d.PrimaryWorkers...)
	for _, group := range d.ParallelGroups {
		ids = append(ids, group...)
	}
	return ids
}

// BudgetBand is the policy band derived from context fullness.
type BudgetBand string

const (
	BandNormal       BudgetBand = "normal"        // <50%: prefer direct work for small actions
	BandSelective    BudgetBand = "selective"     // 50-70%: prefer delegation for searches
	BandDelegateOnly BudgetBand = "delegate_only" // >70%: exploratory reads go through a worker
	BandBlocked      BudgetBand = "blocked"       // >90%: must delegate or archive
)

// EventKind tags a quality event with its severity class.
type EventKind string

const (
	EventGoodPractice   EventKind = "good_practice"
	EventMinorIssue     EventKind = "minor_issue"
	EventModerateIssue  EventKind = "moderate_issue"
	EventSeriousIssue   EventKind = "serious_issue"
	EventMajorViolation EventKind = "major_violation"
)

// QualityEvent is emitted by a worker alongside its WorkResult.
// Events are immutable value objects; repeat bookkeeping lives in the
// policy engine's per-session counters, not here.
type QualityEvent struct {
	Kind       EventKind `json:"kind"`
	ReasonCode string    `json:"reason_code"`
	// Delta is only meaningful for GoodPractice events, where the worker
	// supplies a reward in [5, 20]. Ignored for issue kinds, which carry
	// fixed penalties.
	Delta int `json:"delta,omitempty"`
}

// WorkResult is what a worker returns from one invocation.
type WorkResult struct {
	WorkerID  string         `json:"worker_id"`
	Summary   string         `json:"summary"`
	Artifacts []string       `json:"artifacts,omitempty"`
	Events    []QualityEvent `json:"events,omitempty"`
	// BudgetUsedPercent is the final fullness of the worker's own budget.
	BudgetUsedPercent int `json:"budget_used_percent"`
}

// StandingTier is derived from the ledger balance, never stored.
type StandingTier string

const (
	StandingExcellent StandingTier = "excellent" // balance >= 100
	StandingGood      StandingTier = "good"      // 50..99
	StandingCautious  StandingTier = "cautious"  // 1..49
	StandingPoor      StandingTier = "poor"      // <= 0
)

// TierFor computes the standing tier for a balance.
func TierFor(balance int) StandingTier {
	switch {
	case balance >= 100:
		return StandingExcellent
	case balance >= 50:
		return StandingGood
	case balance >= 1:
		return StandingCautious
	default:
		return StandingPoor
	}
}

// LedgerEntry is one append-only record in the ledger history.
type LedgerEntry struct {
	EntryID    string `json:"entry_id"`
	Delta      int    `json:"delta"`
	ReasonCode string `json:"reason_code"`
	Timestamp  int64  `json:"timestamp"`
}

// QuestTier determines a redemption quest's reward.
type QuestTier string

const (
	QuestQuick       QuestTier = "quick"
	QuestStandard    QuestTier = "standard"
	QuestFull        QuestTier = "full"
	QuestExtraCredit QuestTier = "extra_credit"
)

// QuestReward returns the fixed reward delta for a quest tier.
func QuestReward(tier QuestTier) int {
	switch tier {
	case QuestQuick:
		return 10
	case QuestStandard:
		return 25
	case QuestFull:
		return 50
	case QuestExtraCredit:
		return 75
	default:
		return 0
	}
}

// RedemptionQuest is the mandatory remedial work required while the
// ledger is in Poor standing.
type RedemptionQuest struct {
	QuestID             string    `json:"quest_id"`
	Tier                QuestTier `json:"tier"`
	RequiredConditions  []string  `json:"required_conditions"`
	SatisfiedConditions []string  `json:"satisfied_conditions"`
	CreatedAtUnix       int64     `json:"created_at_unix"`
}

// Satisfied reports whether the given condition has already been met.
func (q *RedemptionQuest) Satisfied(condition string) bool {
	for _, c := range q.SatisfiedConditions {
		if c == condition {
			return true
		}
	}
	return false
}

// Complete reports whether every required condition has been satisfied.
func (q *RedemptionQuest) Complete() bool {
	for _, c := range q.RequiredConditions {
		if !q.Satisfied(c) {
			return false
		}
	}
	return true
}

// TaskOutcome is returned to the caller after one dispatch cycle.
type TaskOutcome struct {
	Results  []WorkResult    `json:"results"`
	Aborted  bool            `json:"aborted"`
	Err      *EngineError    `json:"error,omitempty"`
	Decision RoutingDecision `json:"decision"`
	// FinalBudgetPercent is the caller's context fullness after the run.
	FinalBudgetPercent int          `json:"final_budget_percent"`
	FinalStanding      StandingTier `json:"final_standing"`
}

// Session identifies one work session. The context budget and the policy
// engine's repeat-escalation counters are scoped to a session.
type Session struct {
	SessionID      string `json:"session_id"`
	StartedAtUnix  int64  `json:"started_at_unix"`
	ArchivedAtUnix int64  `json:"archived_at_unix"` // 0 while active
}

// AuditRecord logs routing, gating, and ledger decisions.
type AuditRecord struct {
	ID           string
	SessionID    string
	Category     string
	Actor        string
	Action       string
	RequestJSON  string
	DecisionJSON string
	Severity     string
	CreatedAt    int64
}

// WorkerBrief is the compact context handed to a worker at dispatch.
type WorkerBrief struct {
	WorkerID    string     `json:"worker_id"`
	Objective   string     `json:"objective"`
	DomainHints []string   `json:"domain_hints,omitempty"`
	Constraints []string   `json:"constraints,omitempty"`
	BudgetBand  BudgetBand `json:"budget_band"`
	CostHint    CostHint   `json:"cost_hint"`
}
