// Package engine wires classification, gating, dispatch, and the ledger
// policy into the Submit entry point, and owns the session lifecycle.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskroute/engine/internal/budget"
	"github.com/taskroute/engine/internal/classify"
	"github.com/taskroute/engine/internal/dispatch"
	"github.com/taskroute/engine/internal/domain"
	"github.com/taskroute/engine/internal/gate"
	"github.com/taskroute/engine/internal/ledger"
	"github.com/taskroute/engine/internal/registry"
	"github.com/taskroute/engine/internal/store"
)

// Engine is the inbound boundary: Submit runs one task through the full
// classify -> gate -> dispatch cycle against the caller's context budget.
type Engine struct {
	registry   *registry.Registry
	budget     *budget.ContextBudget
	classifier *classify.Classifier
	gate       *gate.Gate
	dispatcher *dispatch.Dispatcher
	policy     *ledger.Policy
	log        *zap.Logger

	// Persistence is optional: nil DB means memory-only operation.
	db       *sql.DB
	sessions *store.SessionRepo
	audit    gate.Auditor

	mu      sync.Mutex
	session domain.Session
	now     func() time.Time
}

// Deps bundles the engine's collaborators. DB, Audit, and Log may be nil.
type Deps struct {
	Registry   *registry.Registry
	Classifier *classify.Classifier
	Gate       *gate.Gate
	Dispatcher *dispatch.Dispatcher
	Policy     *ledger.Policy
	DB         *sql.DB
	Audit      gate.Auditor
	Log        *zap.Logger
}

// New creates an Engine. Call Start before Submit.
func New(deps Deps) *Engine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		registry:   deps.Registry,
		budget:     budget.New(),
		classifier: deps.Classifier,
		gate:       deps.Gate,
		dispatcher: deps.Dispatcher,
		policy:     deps.Policy,
		db:         deps.DB,
		sessions:   &store.SessionRepo{},
		audit:      deps.Audit,
		log:        log,
		now:        time.Now,
	}
}

// Start resumes the active session or begins a new one, and reconciles the
// replayed ledger state (invariant check, quest re-arm).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.policy.Reconcile(ctx); err != nil {
		return err
	}

	if e.db != nil {
		active, err := e.sessions.GetActive(ctx, e.db)
		if err == nil {
			e.session = *active
			e.log.Info("resumed session", zap.String("session_id", active.SessionID))
			return nil
		}
		if ee, ok := domain.AsEngineError(err); !ok || ee.Code != domain.ErrNoActiveSession.Code {
			return err
		}
	}
	return e.beginSessionLocked(ctx)
}

// Submit runs one task. Classification and gate failures are returned as
// errors before any worker runs; dispatch failures come back inside the
// outcome with Aborted set and the partial results preserved.
func (e *Engine) Submit(ctx context.Context, req domain.TaskRequest) (domain.TaskOutcome, error) {
	sessionID := e.Session().SessionID

	decision, err := e.classifier.Classify(req, e.budget)
	if err != nil {
		return domain.TaskOutcome{}, err
	}

	workers, err := e.resolveWorkers(decision)
	if err != nil {
		return domain.TaskOutcome{}, err
	}
	if err := e.gate.CheckAll(ctx, sessionID, decision, workers); err != nil {
		return domain.TaskOutcome{}, err
	}

	e.auditDispatch(ctx, sessionID, req, decision)
	outcome := e.dispatcher.Dispatch(ctx, req, decision, e.budget)

	e.log.Info("task completed",
		zap.String("session_id", sessionID),
		zap.String("complexity", string(decision.Complexity)),
		zap.Int("results", len(outcome.Results)),
		zap.Bool("aborted", outcome.Aborted))
	return outcome, nil
}

// ArchiveSession closes the current session and begins a fresh one: the
// context budget resets to zero and the policy engine's repeat-escalation
// counters clear. The ledger balance carries over.
func (e *Engine) ArchiveSession(ctx context.Context) (domain.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.session
	if e.db != nil {
		if err := e.sessions.Archive(ctx, e.db, old.SessionID, e.now().Unix()); err != nil {
			return domain.Session{}, err
		}
	}

	e.budget.Reset()
	e.policy.ResetSession()
	e.gate.ResetSession(old.SessionID)

	if e.audit != nil {
		_ = e.audit.Record(ctx, domain.AuditRecord{
			ID:        uuid.NewString(),
			SessionID: old.SessionID,
			Category:  "session",
			Actor:     "system",
			Action:    "session_archived",
			Severity:  "info",
			CreatedAt: e.now().Unix(),
		})
	}

	if err := e.beginSessionLocked(ctx); err != nil {
		return domain.Session{}, err
	}
	e.log.Info("session archived",
		zap.String("archived", old.SessionID),
		zap.String("started", e.session.SessionID))
	return e.session, nil
}

// Session returns the current session.
func (e *Engine) Session() domain.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Budget returns the caller's context budget.
func (e *Engine) Budget() *budget.ContextBudget {
	return e.budget
}

// beginSessionLocked creates and persists a new session. Caller holds e.mu.
func (e *Engine) beginSessionLocked(ctx context.Context) error {
	s := domain.Session{
		SessionID:     uuid.NewString(),
		StartedAtUnix: e.now().Unix(),
	}
	if e.db != nil {
		if err := e.sessions.Create(ctx, e.db, s); err != nil {
			return err
		}
	}
	e.session = s
	e.log.Info("session started", zap.String("session_id", s.SessionID))
	return nil
}

// resolveWorkers looks up the profile of every worker the decision names,
// so the gate can check tool permissions before anything runs.
func (e *Engine) resolveWorkers(decision domain.RoutingDecision) ([]domain.WorkerProfile, error) {
	ids := decision.WorkerIDs()
	workers := make([]domain.WorkerProfile, 0, len(ids))
	for _, id := range ids {
		profile, err := e.registry.Lookup(id)
		if err != nil {
			return nil, domain.NewEngineError(domain.ErrUnknownWorkerInDecision.Code,
				"decision references unknown worker "+id)
		}
		workers = append(workers, profile)
	}
	return workers, nil
}

func (e *Engine) auditDispatch(ctx context.Context, sessionID string, req domain.TaskRequest, decision domain.RoutingDecision) {
	if e.audit == nil {
		return
	}
	reqJSON, _ := json.Marshal(req)
	decJSON, _ := json.Marshal(decision)
	_ = e.audit.Record(ctx, domain.AuditRecord{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Category:     "dispatch",
		Actor:        "system",
		Action:       "task_dispatched",
		RequestJSON:  string(reqJSON),
		DecisionJSON: string(decJSON),
		Severity:     "info",
		CreatedAt:    e.now().Unix(),
	})
}
