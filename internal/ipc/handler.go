// Package ipc provides the HTTP API for the task routing engine.
package ipc

import (
	"encoding/json"
	"net/http"

	"github.com/taskroute/engine/internal/budget"
	"github.com/taskroute/engine/internal/domain"
	"github.com/taskroute/engine/internal/engine"
	"github.com/taskroute/engine/internal/ledger"
	"github.com/taskroute/engine/internal/registry"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Engine   *engine.Engine
	Policy   *ledger.Policy
	Registry *registry.Registry
}

// ChargeRequest is the body for POST /api/v1/budget/charge.
type ChargeRequest struct {
	Weight int `json:"weight"`
}

// SatisfyRequest is the body for POST /api/v1/quest/satisfy.
type SatisfyRequest struct {
	Condition string `json:"condition"`
}

// SatisfyResponse reports whether the satisfy call resolved the quest.
type SatisfyResponse struct {
	Resolved bool                    `json:"resolved"`
	Quest    *domain.RedemptionQuest `json:"quest,omitempty"`
	Balance  int                     `json:"balance"`
}

// LedgerView is the response for GET /api/v1/ledger.
type LedgerView struct {
	Balance        int                 `json:"balance"`
	LifetimeEarned int                 `json:"lifetime_earned"`
	LifetimeLost   int                 `json:"lifetime_lost"`
	Standing       domain.StandingTier `json:"standing"`
}

// BudgetView is the response for GET /api/v1/budget.
type BudgetView struct {
	Fullness int               `json:"fullness"`
	Band     domain.BudgetBand `json:"band"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"session_id": h.Engine.Session().SessionID,
	})
}

// SubmitTask handles POST /api/v1/tasks.
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req domain.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Description == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "description is required"})
		return
	}

	outcome, err := h.Engine.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// GetLedger handles GET /api/v1/ledger.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	balance, earned, lost, standing, _ := h.Policy.Snapshot()
	writeJSON(w, http.StatusOK, LedgerView{
		Balance:        balance,
		LifetimeEarned: earned,
		LifetimeLost:   lost,
		Standing:       standing,
	})
}

// GetLedgerHistory handles GET /api/v1/ledger/history.
func (h *Handler) GetLedgerHistory(w http.ResponseWriter, r *http.Request) {
	_, _, _, _, history := h.Policy.Snapshot()
	if history == nil {
		history = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

// GetQuest handles GET /api/v1/quest.
func (h *Handler) GetQuest(w http.ResponseWriter, r *http.Request) {
	quest := h.Policy.PendingQuest()
	if quest == nil {
		writeError(w, domain.ErrNoActiveQuest)
		return
	}
	writeJSON(w, http.StatusOK, quest)
}

// SatisfyQuest handles POST /api/v1/quest/satisfy.
func (h *Handler) SatisfyQuest(w http.ResponseWriter, r *http.Request) {
	var req SatisfyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Condition == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "condition is required"})
		return
	}

	resolved, err := h.Policy.SatisfyCondition(r.Context(), req.Condition)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SatisfyResponse{
		Resolved: resolved,
		Quest:    h.Policy.PendingQuest(),
		Balance:  h.Policy.Balance(),
	})
}

// GetBudget handles GET /api/v1/budget.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	b := h.Engine.Budget()
	writeJSON(w, http.StatusOK, BudgetView{Fullness: b.Fullness(), Band: b.Band()})
}

// ChargeBudget handles POST /api/v1/budget/charge. Hosts report their own
// context consumption through this endpoint.
func (h *Handler) ChargeBudget(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}

	fullness, err := h.Engine.Budget().Charge(req.Weight)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BudgetView{Fullness: fullness, Band: budget.BandFor(fullness)})
}

// ArchiveSession handles POST /api/v1/session/archive.
func (h *Handler) ArchiveSession(w http.ResponseWriter, r *http.Request) {
	fresh, err := h.Engine.ArchiveSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fresh)
}

// ListWorkers handles GET /api/v1/workers.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers := h.Registry.All()
	if workers == nil {
		workers = []domain.WorkerProfile{}
	}
	writeJSON(w, http.StatusOK, workers)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if engErr, ok := domain.AsEngineError(err); ok {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrWorkerNotFound.Code, domain.ErrNoActiveQuest.Code, domain.ErrNoActiveSession.Code:
			status = http.StatusNotFound
		case domain.ErrBudgetExceeded.Code, domain.ErrRedemptionRequired.Code, domain.ErrPermissionDenied.Code:
			status = http.StatusForbidden
		case domain.ErrRateLimitExceeded.Code:
			status = http.StatusTooManyRequests
		case domain.ErrNoMatchingWorker.Code, domain.ErrEventInvalid.Code,
			domain.ErrInvalidChargeWeight.Code, domain.ErrUnknownCondition.Code,
			domain.ErrQuestActive.Code:
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}
