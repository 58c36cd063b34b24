package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/taskroute/engine/internal/domain"
)

type fakeQuests struct {
	quest *domain.RedemptionQuest
}

func (f *fakeQuests) PendingQuest() *domain.RedemptionQuest { return f.quest }

type fakeAuditor struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (f *fakeAuditor) Record(_ context.Context, rec domain.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAuditor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestCheckRedemption_BlocksComplexWhileQuestPending(t *testing.T) {
	quests := &fakeQuests{quest: &domain.RedemptionQuest{QuestID: "q1", Tier: domain.QuestStandard}}
	audit := &fakeAuditor{}
	g := New(Config{}, quests, audit, nil)
	ctx := context.Background()

	err := g.CheckRedemption(ctx, "s1", domain.RoutingDecision{Complexity: domain.ComplexityComplex})
	if !errors.Is(err, domain.ErrRedemptionRequired) {
		t.Errorf("expected ErrRedemptionRequired, got %v", err)
	}
	if audit.count() != 1 {
		t.Errorf("denial not audited, records = %d", audit.count())
	}

	// Simple work is still allowed while the quest is open.
	if err := g.CheckRedemption(ctx, "s1", domain.RoutingDecision{Complexity: domain.ComplexitySimple}); err != nil {
		t.Errorf("simple dispatch blocked: %v", err)
	}
}

func TestCheckRedemption_AllowsComplexWithoutQuest(t *testing.T) {
	g := New(Config{}, &fakeQuests{}, nil, nil)

	err := g.CheckRedemption(context.Background(), "s1", domain.RoutingDecision{Complexity: domain.ComplexityComplex})
	if err != nil {
		t.Errorf("CheckRedemption: %v", err)
	}
}

func TestCheckRateLimit_SlidingWindow(t *testing.T) {
	g := New(Config{RateLimitPerMinute: 3}, &fakeQuests{}, nil, nil)
	clock := time.Unix(1000, 0)
	g.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if err := g.CheckRateLimit("s1"); err != nil {
			t.Fatalf("call %d within limit rejected: %v", i+1, err)
		}
	}
	if err := g.CheckRateLimit("s1"); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Errorf("expected ErrRateLimitExceeded, got %v", err)
	}

	// Other sessions are unaffected.
	if err := g.CheckRateLimit("s2"); err != nil {
		t.Errorf("independent session rejected: %v", err)
	}

	// The window resets after 60 seconds.
	clock = clock.Add(61 * time.Second)
	if err := g.CheckRateLimit("s1"); err != nil {
		t.Errorf("call after window expiry rejected: %v", err)
	}
}

func TestCheckRateLimit_DisabledWhenZero(t *testing.T) {
	g := New(Config{}, &fakeQuests{}, nil, nil)
	for i := 0; i < 100; i++ {
		if err := g.CheckRateLimit("s1"); err != nil {
			t.Fatalf("unlimited gate rejected call %d: %v", i+1, err)
		}
	}
}

func TestCheckToolPermissions(t *testing.T) {
	audit := &fakeAuditor{}
	g := New(Config{AllowedTools: []string{"read_file", "search"}}, &fakeQuests{}, audit, nil)
	ctx := context.Background()

	ok := domain.WorkerProfile{ID: "scout", ToolPermissions: []string{"read_file"}}
	if err := g.CheckToolPermissions(ctx, "s1", ok); err != nil {
		t.Errorf("allowed worker rejected: %v", err)
	}

	bad := domain.WorkerProfile{ID: "builder", ToolPermissions: []string{"read_file", "write_file"}}
	err := g.CheckToolPermissions(ctx, "s1", bad)
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
	if audit.count() != 1 {
		t.Errorf("denial not audited, records = %d", audit.count())
	}
}

func TestCheckToolPermissions_EmptyAllowlistAllowsAll(t *testing.T) {
	g := New(Config{}, &fakeQuests{}, nil, nil)
	w := domain.WorkerProfile{ID: "builder", ToolPermissions: []string{"anything"}}
	if err := g.CheckToolPermissions(context.Background(), "s1", w); err != nil {
		t.Errorf("empty allowlist should allow all tools: %v", err)
	}
}

func TestCheckAll_OrderAndShortCircuit(t *testing.T) {
	quests := &fakeQuests{quest: &domain.RedemptionQuest{QuestID: "q1", Tier: domain.QuestStandard}}
	g := New(Config{RateLimitPerMinute: 1, AllowedTools: []string{"read_file"}}, quests, nil, nil)
	ctx := context.Background()
	decision := domain.RoutingDecision{Complexity: domain.ComplexityComplex, PrimaryWorkers: []string{"w"}}
	workers := []domain.WorkerProfile{{ID: "w", ToolPermissions: []string{"write_file"}}}

	// First call: rate limit passes, redemption check fires before the
	// permission check.
	err := g.CheckAll(ctx, "s1", decision, workers)
	if !errors.Is(err, domain.ErrRedemptionRequired) {
		t.Errorf("expected ErrRedemptionRequired first, got %v", err)
	}

	// Second call inside the window: rate limit fires first.
	err = g.CheckAll(ctx, "s1", decision, workers)
	if !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Errorf("expected ErrRateLimitExceeded, got %v", err)
	}
}

func TestResetSession_ClearsRateWindow(t *testing.T) {
	g := New(Config{RateLimitPerMinute: 1}, &fakeQuests{}, nil, nil)

	if err := g.CheckRateLimit("s1"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := g.CheckRateLimit("s1"); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("expected limit hit, got %v", err)
	}

	g.ResetSession("s1")
	if err := g.CheckRateLimit("s1"); err != nil {
		t.Errorf("call after reset rejected: %v", err)
	}
}
