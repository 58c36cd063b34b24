package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taskroute/engine/internal/budget"
	"github.com/taskroute/engine/internal/classify"
	"github.com/taskroute/engine/internal/dispatch"
	"github.com/taskroute/engine/internal/domain"
	"github.com/taskroute/engine/internal/engine"
	"github.com/taskroute/engine/internal/gate"
	"github.com/taskroute/engine/internal/ledger"
	"github.com/taskroute/engine/internal/registry"
)

// stubExecutor completes every worker with a canned summary.
type stubExecutor struct{}

func (stubExecutor) Execute(_ context.Context, brief domain.WorkerBrief, _ domain.TaskRequest, _ *budget.ContextBudget) (domain.WorkResult, error) {
	return domain.WorkResult{Summary: "done by " + brief.WorkerID}, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	reg, err := registry.Load([]domain.WorkerProfile{
		{ID: "explorer", DomainTags: []string{"storage"}, CapabilityTags: []string{"explore"}},
		{ID: "implementer", DomainTags: []string{"storage"}, CapabilityTags: []string{"implement"}},
	})
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}

	policy := ledger.NewPolicy(ledger.NewLedger(), ledger.PolicyConfig{}, nil, nil)
	e := engine.New(engine.Deps{
		Registry:   reg,
		Classifier: classify.New(reg),
		Gate:       gate.New(gate.Config{}, policy, nil, nil),
		Dispatcher: dispatch.New(reg, stubExecutor{}, policy, dispatch.Config{}, nil),
		Policy:     policy,
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("engine.Start: %v", err)
	}

	return &Handler{Engine: e, Policy: policy, Registry: reg}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)
	w := httptest.NewRecorder()

	h.Health(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" || body["session_id"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestSubmitTask_Success(t *testing.T) {
	h := newTestHandler(t)
	body := `{"description":"tweak cache layer","domain_hints":["storage"],"size_estimate_lines":40}`
	w := httptest.NewRecorder()

	h.SubmitTask(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var outcome domain.TaskOutcome
	json.NewDecoder(w.Body).Decode(&outcome)
	if outcome.Aborted || len(outcome.Results) != 1 {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestSubmitTask_InvalidBody(t *testing.T) {
	h := newTestHandler(t)
	w := httptest.NewRecorder()

	h.SubmitTask(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString("not json")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmitTask_NoMatchingWorker(t *testing.T) {
	h := newTestHandler(t)
	body := `{"description":"firmware","domain_hints":["firmware"],"size_estimate_lines":40}`
	w := httptest.NewRecorder()

	h.SubmitTask(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString(body)))

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var apiErr APIError
	json.NewDecoder(w.Body).Decode(&apiErr)
	if apiErr.Code != domain.ErrNoMatchingWorker.Code {
		t.Errorf("code = %d, want %d", apiErr.Code, domain.ErrNoMatchingWorker.Code)
	}
}

func TestLedgerEndpoints(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	if _, err := h.Policy.Apply(ctx, domain.QualityEvent{Kind: domain.EventGoodPractice, ReasonCode: "clean", Delta: 10}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	w := httptest.NewRecorder()
	h.GetLedger(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ledger: expected 200, got %d", w.Code)
	}
	var view LedgerView
	json.NewDecoder(w.Body).Decode(&view)
	if view.Balance != 10 || view.Standing != domain.StandingCautious {
		t.Errorf("view = %+v", view)
	}

	w = httptest.NewRecorder()
	h.GetLedgerHistory(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/history", nil))
	var history []domain.LedgerEntry
	json.NewDecoder(w.Body).Decode(&history)
	if len(history) != 1 || history[0].Delta != 10 {
		t.Errorf("history = %v", history)
	}
}

func TestQuestEndpoints(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	// No quest yet.
	w := httptest.NewRecorder()
	h.GetQuest(w, httptest.NewRequest(http.MethodGet, "/api/v1/quest", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without quest, got %d", w.Code)
	}

	// Arm one by entering poor standing.
	if _, err := h.Policy.Apply(ctx, domain.QualityEvent{Kind: domain.EventMajorViolation, ReasonCode: "broke_build"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	w = httptest.NewRecorder()
	h.GetQuest(w, httptest.NewRequest(http.MethodGet, "/api/v1/quest", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var quest domain.RedemptionQuest
	json.NewDecoder(w.Body).Decode(&quest)
	if quest.Tier != domain.QuestStandard {
		t.Errorf("quest = %+v", quest)
	}

	// Satisfy each condition; the last call resolves.
	var resp SatisfyResponse
	for _, cond := range quest.RequiredConditions {
		body, _ := json.Marshal(SatisfyRequest{Condition: cond})
		w = httptest.NewRecorder()
		h.SatisfyQuest(w, httptest.NewRequest(http.MethodPost, "/api/v1/quest/satisfy", bytes.NewReader(body)))
		if w.Code != http.StatusOK {
			t.Fatalf("satisfy %q: expected 200, got %d: %s", cond, w.Code, w.Body.String())
		}
		json.NewDecoder(w.Body).Decode(&resp)
	}
	if !resp.Resolved {
		t.Error("quest did not resolve after all conditions")
	}
	// -50 violation + 25 standard reward.
	if resp.Balance != -25 {
		t.Errorf("balance = %d, want -25", resp.Balance)
	}
}

func TestSatisfyQuest_UnknownCondition(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	if _, err := h.Policy.Apply(ctx, domain.QualityEvent{Kind: domain.EventMajorViolation, ReasonCode: "broke_build"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	w := httptest.NewRecorder()
	h.SatisfyQuest(w, httptest.NewRequest(http.MethodPost, "/api/v1/quest/satisfy",
		bytes.NewBufferString(`{"condition":"unrelated"}`)))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestBudgetEndpoints(t *testing.T) {
	h := newTestHandler(t)

	w := httptest.NewRecorder()
	h.ChargeBudget(w, httptest.NewRequest(http.MethodPost, "/api/v1/budget/charge",
		bytes.NewBufferString(`{"weight":55}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("charge: expected 200, got %d", w.Code)
	}
	var view BudgetView
	json.NewDecoder(w.Body).Decode(&view)
	if view.Fullness != 55 || view.Band != domain.BandSelective {
		t.Errorf("view = %+v", view)
	}

	w = httptest.NewRecorder()
	h.GetBudget(w, httptest.NewRequest(http.MethodGet, "/api/v1/budget", nil))
	json.NewDecoder(w.Body).Decode(&view)
	if view.Fullness != 55 {
		t.Errorf("fullness = %d, want 55", view.Fullness)
	}

	// Invalid weight.
	w = httptest.NewRecorder()
	h.ChargeBudget(w, httptest.NewRequest(http.MethodPost, "/api/v1/budget/charge",
		bytes.NewBufferString(`{"weight":-1}`)))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for invalid weight, got %d", w.Code)
	}

	// Push past the blocked threshold, then a charge is forbidden.
	w = httptest.NewRecorder()
	h.ChargeBudget(w, httptest.NewRequest(http.MethodPost, "/api/v1/budget/charge",
		bytes.NewBufferString(`{"weight":40}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("charge to 95: got %d", w.Code)
	}
	w = httptest.NewRecorder()
	h.ChargeBudget(w, httptest.NewRequest(http.MethodPost, "/api/v1/budget/charge",
		bytes.NewBufferString(`{"weight":1}`)))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 above 90%%, got %d", w.Code)
	}
}

func TestArchiveSession(t *testing.T) {
	h := newTestHandler(t)
	before := h.Engine.Session().SessionID

	w := httptest.NewRecorder()
	h.ArchiveSession(w, httptest.NewRequest(http.MethodPost, "/api/v1/session/archive", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var fresh domain.Session
	json.NewDecoder(w.Body).Decode(&fresh)
	if fresh.SessionID == before || fresh.SessionID == "" {
		t.Errorf("fresh session = %+v", fresh)
	}
}

func TestListWorkers(t *testing.T) {
	h := newTestHandler(t)
	w := httptest.NewRecorder()

	h.ListWorkers(w, httptest.NewRequest(http.MethodGet, "/api/v1/workers", nil))

	var workers []domain.WorkerProfile
	json.NewDecoder(w.Body).Decode(&workers)
	if len(workers) != 2 {
		t.Errorf("workers = %v", workers)
	}
}

func TestServerRouting(t *testing.T) {
	h := newTestHandler(t)
	srv := NewServer(h, ":0")
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q", got)
	}

	// Method mismatch falls through to 405.
	resp2, err := http.Get(ts.URL + "/api/v1/tasks")
	if err != nil {
		t.Fatalf("GET tasks: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on POST route = %d, want 405", resp2.StatusCode)
	}
}
