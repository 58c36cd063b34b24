package ledger

import (
	"math/rand"
	"testing"

	"github.com/taskroute/engine/internal/domain"
)

func TestReplay_ReconstructsBalance(t *testing.T) {
	entries := []domain.LedgerEntry{
		{EntryID: "e1", Delta: 50, ReasonCode: "seed", Timestamp: 1},
		{EntryID: "e2", Delta: -20, ReasonCode: "serious", Timestamp: 2},
		{EntryID: "e3", Delta: 15, ReasonCode: "good", Timestamp: 3},
	}

	l := Replay(entries)
	if l.Balance() != 45 {
		t.Errorf("Balance = %d, want 45", l.Balance())
	}
	if l.LifetimeEarned() != 65 {
		t.Errorf("LifetimeEarned = %d, want 65", l.LifetimeEarned())
	}
	if l.LifetimeLost() != 20 {
		t.Errorf("LifetimeLost = %d, want 20", l.LifetimeLost())
	}
	if l.Standing() != domain.StandingCautious {
		t.Errorf("Standing = %q, want cautious", l.Standing())
	}
	if err := l.CheckInvariant(); err != nil {
		t.Errorf("CheckInvariant: %v", err)
	}
}

func TestInvariant_RandomEvents(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := NewLedger()

	for i := 0; i < 500; i++ {
		l.append(domain.LedgerEntry{
			EntryID:    "e",
			Delta:      rng.Intn(101) - 50,
			ReasonCode: "random",
			Timestamp:  int64(i),
		})
		if err := l.CheckInvariant(); err != nil {
			t.Fatalf("invariant broken after %d events: %v", i+1, err)
		}
	}
	if len(l.History()) != 500 {
		t.Errorf("history length = %d, want 500", len(l.History()))
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		balance int
		want    domain.StandingTier
	}{
		{150, domain.StandingExcellent},
		{100, domain.StandingExcellent},
		{99, domain.StandingGood},
		{50, domain.StandingGood},
		{49, domain.StandingCautious},
		{1, domain.StandingCautious},
		{0, domain.StandingPoor},
		{-75, domain.StandingPoor},
	}
	for _, tt := range tests {
		if got := domain.TierFor(tt.balance); got != tt.want {
			t.Errorf("TierFor(%d) = %q, want %q", tt.balance, got, tt.want)
		}
	}
}

func TestValidateEvent(t *testing.T) {
	tests := []struct {
		name    string
		ev      domain.QualityEvent
		wantErr bool
	}{
		{"good practice in range", domain.QualityEvent{Kind: domain.EventGoodPractice, ReasonCode: "clean_api", Delta: 10}, false},
		{"good practice below range", domain.QualityEvent{Kind: domain.EventGoodPractice, ReasonCode: "x", Delta: 4}, true},
		{"good practice above range", domain.QualityEvent{Kind: domain.EventGoodPractice, ReasonCode: "x", Delta: 21}, true},
		{"minor issue", domain.QualityEvent{Kind: domain.EventMinorIssue, ReasonCode: "lint"}, false},
		{"issue with delta", domain.QualityEvent{Kind: domain.EventSeriousIssue, ReasonCode: "x", Delta: -3}, true},
		{"missing reason", domain.QualityEvent{Kind: domain.EventMinorIssue}, true},
		{"bogus kind", domain.QualityEvent{Kind: "whatever", ReasonCode: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEvent(tt.ev)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
