package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskroute/engine/internal/domain"
)

// Store persists ledger entries and quest state. Entries are written before
// the in-memory ledger is mutated, so a write failure never leaves the two
// views diverged.
type Store interface {
	AppendEntry(ctx context.Context, entry domain.LedgerEntry) error
	SaveQuest(ctx context.Context, quest domain.RedemptionQuest) error
	UpdateQuestConditions(ctx context.Context, questID string, satisfied []string) error
	ResolveQuest(ctx context.Context, questID string, resolvedAtUnix int64) error
}

// PolicyConfig holds the tunable policy numbers. Zero values get the
// defaults from the routing policy; the thresholds are configuration, not
// protocol.
type PolicyConfig struct {
	MinorPenalty    int `yaml:"minor_penalty"`
	ModeratePenalty int `yaml:"moderate_penalty"`
	SeriousPenalty  int `yaml:"serious_penalty"`
	MajorPenalty    int `yaml:"major_penalty"`
	// RepeatThreshold is the number of prior occurrences of a reason code
	// after which the penalty doubles. With the default of 2, the third
	// and subsequent occurrences in a session apply double the base penalty.
	RepeatThreshold int `yaml:"repeat_threshold"`
	// ExcellentMultiplier scales positive deltas while standing is Excellent.
	ExcellentMultiplier float64 `yaml:"excellent_multiplier"`
	// QuestConditions are the required conditions for auto-armed quests.
	QuestConditions []string `yaml:"quest_conditions"`
}

func (c *PolicyConfig) applyDefaults() {
	if c.MinorPenalty == 0 {
		c.MinorPenalty = 5
	}
	if c.ModeratePenalty == 0 {
		c.ModeratePenalty = 10
	}
	if c.SeriousPenalty == 0 {
		c.SeriousPenalty = 20
	}
	if c.MajorPenalty == 0 {
		c.MajorPenalty = 50
	}
	if c.RepeatThreshold == 0 {
		c.RepeatThreshold = 2
	}
	if c.ExcellentMultiplier == 0 {
		c.ExcellentMultiplier = 1.5
	}
	if len(c.QuestConditions) == 0 {
		c.QuestConditions = defaultQuestConditions
	}
}

// Policy is the ledger policy engine. It accepts quality events via a
// serialized apply path (single mutex), maintains the per-session repeat
// escalation counters, and manages redemption quests. The ledger invariant
// balance == sum(history deltas) holds even when workers in the same
// parallel group report events at the same instant.
type Policy struct {
	mu      sync.Mutex
	ledger  *Ledger
	cfg     PolicyConfig
	store   Store
	log     *zap.Logger
	repeats map[string]int
	now     func() time.Time
}

// NewPolicy creates a policy engine over the given ledger. store may be nil
// (memory-only operation, used by tests); log may be nil.
func NewPolicy(l *Ledger, cfg PolicyConfig, store Store, log *zap.Logger) *Policy {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{
		ledger:  l,
		cfg:     cfg,
		store:   store,
		log:     log,
		repeats: make(map[string]int),
		now:     time.Now,
	}
}

// Apply validates one quality event, computes its effective delta, appends
// a ledger entry, and arms a redemption quest if the balance enters Poor.
func (p *Policy) Apply(ctx context.Context, ev domain.QualityEvent) (domain.LedgerEntry, error) {
	if err := ValidateEvent(ev); err != nil {
		return domain.LedgerEntry{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prior := p.repeats[ev.ReasonCode]
	p.repeats[ev.ReasonCode] = prior + 1

	delta := p.baseDelta(ev)

	// Escalation: once a reason code has fired RepeatThreshold times, later
	// occurrences apply double the base penalty.
	if delta < 0 && prior >= p.cfg.RepeatThreshold {
		delta *= 2
	}

	// Bonus multiplier for positive deltas while standing is Excellent,
	// recomputed from the live balance on every event.
	if delta > 0 && p.ledger.Standing() == domain.StandingExcellent {
		delta = int(float64(delta) * p.cfg.ExcellentMultiplier)
	}

	entry, err := p.appendLocked(ctx, delta, ev.ReasonCode)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	p.log.Debug("quality event applied",
		zap.String("kind", string(ev.Kind)),
		zap.String("reason", ev.ReasonCode),
		zap.Int("delta", delta),
		zap.Int("balance", p.ledger.Balance()),
		zap.String("standing", string(p.ledger.Standing())))

	if err := p.armQuestIfPoorLocked(ctx); err != nil {
		return entry, err
	}
	return entry, nil
}

func (p *Policy) baseDelta(ev domain.QualityEvent) int {
	switch ev.Kind {
	case domain.EventGoodPractice:
		return ev.Delta
	case domain.EventMinorIssue:
		return -p.cfg.MinorPenalty
	case domain.EventModerateIssue:
		return -p.cfg.ModeratePenalty
	case domain.EventSeriousIssue:
		return -p.cfg.SeriousPenalty
	case domain.EventMajorViolation:
		return -p.cfg.MajorPenalty
	default:
		return 0
	}
}

// appendLocked persists and applies one entry. Caller holds p.mu.
func (p *Policy) appendLocked(ctx context.Context, delta int, reasonCode string) (domain.LedgerEntry, error) {
	entry := domain.LedgerEntry{
		EntryID:    uuid.NewString(),
		Delta:      delta,
		ReasonCode: reasonCode,
		Timestamp:  p.now().Unix(),
	}
	if p.store != nil {
		if err := p.store.AppendEntry(ctx, entry); err != nil {
			return domain.LedgerEntry{}, err
		}
	}
	p.ledger.append(entry)
	return entry, nil
}

// armQuestIfPoorLocked arms a Standard quest when the balance is in Poor
// standing and no quest is active. Entering Poor while a quest is already
// active leaves it unchanged: quests do not stack. Caller holds p.mu.
func (p *Policy) armQuestIfPoorLocked(ctx context.Context) error {
	if p.ledger.Standing() != domain.StandingPoor || p.ledger.pendingQuest != nil {
		return nil
	}

	quest := newQuest(domain.QuestStandard, p.cfg.QuestConditions, p.now())
	if p.store != nil {
		if err := p.store.SaveQuest(ctx, quest); err != nil {
			return err
		}
	}
	p.ledger.pendingQuest = &quest

	p.log.Warn("standing entered poor, redemption quest armed",
		zap.String("quest_id", quest.QuestID),
		zap.Strings("required", quest.RequiredConditions),
		zap.Int("balance", p.ledger.Balance()))
	return nil
}

// ArmQuest explicitly arms a quest of the given tier, for host tools that
// want to offer extra-credit work. Fails if a quest is already active.
func (p *Policy) ArmQuest(ctx context.Context, tier domain.QuestTier, conditions []string) (*domain.RedemptionQuest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ledger.pendingQuest != nil {
		return nil, domain.ErrQuestActive
	}
	if len(conditions) == 0 {
		conditions = p.cfg.QuestConditions
	}

	quest := newQuest(tier, conditions, p.now())
	if p.store != nil {
		if err := p.store.SaveQuest(ctx, quest); err != nil {
			return nil, err
		}
	}
	p.ledger.pendingQuest = &quest
	out := quest
	return &out, nil
}

// SatisfyCondition marks one required condition of the active quest as met.
// When the last condition is satisfied the quest resolves: its reward is
// applied exactly once and the quest is cleared. Satisfying an
// already-satisfied condition is a no-op. Returns true when this call
// resolved the quest.
func (p *Policy) SatisfyCondition(ctx context.Context, condition string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	quest := p.ledger.pendingQuest
	if quest == nil {
		return false, domain.ErrNoActiveQuest
	}

	required := false
	for _, c := range quest.RequiredConditions {
		if c == condition {
			required = true
			break
		}
	}
	if !required {
		return false, domain.ErrUnknownCondition
	}
	if quest.Satisfied(condition) {
		return false, nil
	}

	satisfied := append(append([]string(nil), quest.SatisfiedConditions...), condition)
	if p.store != nil {
		if err := p.store.UpdateQuestConditions(ctx, quest.QuestID, satisfied); err != nil {
			return false, err
		}
	}
	quest.SatisfiedConditions = satisfied

	if !quest.Complete() {
		return false, nil
	}

	// Resolution: reward applied, quest cleared. The reward is a fixed
	// amount, not a quality event, so the Excellent multiplier does not
	// touch it.
	now := p.now()
	if p.store != nil {
		if err := p.store.ResolveQuest(ctx, quest.QuestID, now.Unix()); err != nil {
			return false, err
		}
	}
	reward := domain.QuestReward(quest.Tier)
	if _, err := p.appendLocked(ctx, reward, questReasonCode(quest.Tier)); err != nil {
		return false, err
	}
	p.ledger.pendingQuest = nil

	p.log.Info("redemption quest resolved",
		zap.String("quest_id", quest.QuestID),
		zap.String("tier", string(quest.Tier)),
		zap.Int("reward", reward),
		zap.Int("balance", p.ledger.Balance()))

	// If the reward did not lift the balance out of Poor, remedial work is
	// still owed: a fresh quest is armed immediately.
	if err := p.armQuestIfPoorLocked(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Reconcile verifies the ledger invariant and re-arms a quest if the
// persisted state loaded at startup has a Poor balance with no open quest.
func (p *Policy) Reconcile(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ledger.CheckInvariant(); err != nil {
		return err
	}
	return p.armQuestIfPoorLocked(ctx)
}

// AttachQuest installs a quest loaded from the store at startup.
func (p *Policy) AttachQuest(quest domain.RedemptionQuest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := quest
	p.ledger.pendingQuest = &q
}

// ResetSession clears the per-session repeat escalation counters, used when
// a session is archived.
func (p *Policy) ResetSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repeats = make(map[string]int)
}

// Balance returns the current balance.
func (p *Policy) Balance() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Balance()
}

// Standing returns the current standing tier.
func (p *Policy) Standing() domain.StandingTier {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Standing()
}

// PendingQuest returns a copy of the active quest, or nil.
func (p *Policy) PendingQuest() *domain.RedemptionQuest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.PendingQuest()
}

// Snapshot returns the full ledger view for reporting.
func (p *Policy) Snapshot() (balance, earned, lost int, standing domain.StandingTier, history []domain.LedgerEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Balance(), p.ledger.LifetimeEarned(), p.ledger.LifetimeLost(),
		p.ledger.Standing(), p.ledger.History()
}
