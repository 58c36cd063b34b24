// Package gate runs the pre-dispatch checks: redemption state, per-session
// rate limits, and tool permissions.
package gate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskroute/engine/internal/domain"
)

// QuestSource exposes the active redemption quest, if any. The ledger
// policy engine satisfies this.
type QuestSource interface {
	PendingQuest() *domain.RedemptionQuest
}

// Auditor records gate decisions. May be backed by the audit repo or left
// nil in tests.
type Auditor interface {
	Record(ctx context.Context, rec domain.AuditRecord) error
}

// Config holds the gate's limits.
type Config struct {
	// RateLimitPerMinute caps Submit calls per session in a sliding
	// 60-second window. Zero disables the limit.
	RateLimitPerMinute int
	// AllowedTools is the host allowlist checked against each selected
	// worker's required tool permissions. Empty allows everything.
	AllowedTools []string
}

// Gate coordinates the checks that run between classification and dispatch.
// It short-circuits on the first failure.
type Gate struct {
	cfg    Config
	quests QuestSource
	audit  Auditor
	log    *zap.Logger

	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	count       int
	windowStart int64
}

// New creates a Gate. quests is required; audit and log may be nil.
func New(cfg Config, quests QuestSource, audit Auditor, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		cfg:     cfg,
		quests:  quests,
		audit:   audit,
		log:     log,
		buckets: make(map[string]*rateBucket),
		now:     time.Now,
	}
}

// CheckAll runs every gate check in order: rate limit, redemption state,
// tool permissions for each selected worker.
func (g *Gate) CheckAll(ctx context.Context, sessionID string, decision domain.RoutingDecision, workers []domain.WorkerProfile) error {
	if err := g.CheckRateLimit(sessionID); err != nil {
		return err
	}
	if err := g.CheckRedemption(ctx, sessionID, decision); err != nil {
		return err
	}
	for _, w := range workers {
		if err := g.CheckToolPermissions(ctx, sessionID, w); err != nil {
			return err
		}
	}
	return nil
}

// CheckRedemption refuses complex dispatch while a redemption quest is
// open. Trivial and simple work stays allowed so the quest itself can be
// carried out.
func (g *Gate) CheckRedemption(ctx context.Context, sessionID string, decision domain.RoutingDecision) error {
	if decision.Complexity != domain.ComplexityComplex {
		return nil
	}
	quest := g.quests.PendingQuest()
	if quest == nil {
		return nil
	}

	g.recordDenial(ctx, sessionID, "redemption_required",
		map[string]string{"quest_id": quest.QuestID, "tier": string(quest.Tier)})
	g.log.Warn("complex dispatch refused: redemption quest pending",
		zap.String("session_id", sessionID),
		zap.String("quest_id", quest.QuestID))
	return domain.NewEngineError(domain.ErrRedemptionRequired.Code,
		"complex tasks are blocked until quest "+quest.QuestID+" is resolved")
}

// CheckRateLimit enforces a per-session sliding window of 60 seconds.
func (g *Gate) CheckRateLimit(sessionID string) error {
	if g.cfg.RateLimitPerMinute <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().Unix()
	bucket, ok := g.buckets[sessionID]
	if !ok || now-bucket.windowStart > 60 {
		g.buckets[sessionID] = &rateBucket{count: 1, windowStart: now}
		return nil
	}

	if bucket.count >= g.cfg.RateLimitPerMinute {
		return domain.ErrRateLimitExceeded
	}
	bucket.count++
	return nil
}

// CheckToolPermissions verifies that every tool the worker's profile
// requires is on the host allowlist. Denials are audited.
func (g *Gate) CheckToolPermissions(ctx context.Context, sessionID string, worker domain.WorkerProfile) error {
	if len(g.cfg.AllowedTools) == 0 {
		return nil
	}

	allowed := make(map[string]bool, len(g.cfg.AllowedTools))
	for _, t := range g.cfg.AllowedTools {
		allowed[t] = true
	}

	for _, required := range worker.ToolPermissions {
		if allowed[required] {
			continue
		}
		g.recordDenial(ctx, sessionID, "permission_denied",
			map[string]string{"worker_id": worker.ID, "tool": required})
		g.log.Warn("worker tool permission denied",
			zap.String("session_id", sessionID),
			zap.String("worker_id", worker.ID),
			zap.String("tool", required))
		return domain.NewEngineError(domain.ErrPermissionDenied.Code,
			"worker "+worker.ID+" requires tool "+required+" which is not allowed")
	}
	return nil
}

// ResetSession drops the rate window for an archived session.
func (g *Gate) ResetSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.buckets, sessionID)
}

func (g *Gate) recordDenial(ctx context.Context, sessionID, action string, detail map[string]string) {
	if g.audit == nil {
		return
	}
	decision, _ := json.Marshal(detail)
	_ = g.audit.Record(ctx, domain.AuditRecord{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Category:     "gate",
		Actor:        "system",
		Action:       action,
		DecisionJSON: string(decision),
		Severity:     "warning",
		CreatedAt:    g.now().Unix(),
	})
}
