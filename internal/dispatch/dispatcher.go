// Package dispatch executes routing decisions: sequential primaries first,
// then parallel groups, forwarding quality events to the ledger policy as
// they arrive.
package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskroute/engine/internal/budget"
	"github.com/taskroute/engine/internal/domain"
	"github.com/taskroute/engine/internal/registry"
)

// Executor is the outbound boundary: it runs one worker to completion.
// Implementations must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, brief domain.WorkerBrief, req domain.TaskRequest, b *budget.ContextBudget) (domain.WorkResult, error)
}

// EventSink receives quality events as workers report them. The ledger
// policy engine satisfies this; its apply path is serialized, so sinks may
// be called from parallel group goroutines.
type EventSink interface {
	Apply(ctx context.Context, ev domain.QualityEvent) (domain.LedgerEntry, error)
	Standing() domain.StandingTier
}

// Config holds the dispatcher's tunables.
type Config struct {
	// MaxParallel bounds concurrent workers within one parallel group.
	MaxParallel int
}

func (c *Config) applyDefaults() {
	if c.MaxParallel == 0 {
		c.MaxParallel = 4
	}
}

// Dispatcher runs the workers named by a routing decision.
type Dispatcher struct {
	registry *registry.Registry
	exec     Executor
	events   EventSink
	cfg      Config
	log      *zap.Logger
}

// New creates a Dispatcher. log may be nil.
func New(reg *registry.Registry, exec Executor, events EventSink, cfg Config, log *zap.Logger) *Dispatcher {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{registry: reg, exec: exec, events: events, cfg: cfg, log: log}
}

// Dispatch executes the decision against the caller's budget. Primaries run
// strictly in order and the first failure aborts the rest; each parallel
// group is joined before the next starts, and a member failure does not
// cancel its in-flight siblings. Every worker gets a fresh delegated budget.
// The returned outcome always carries the results completed so far.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.TaskRequest, decision domain.RoutingDecision, caller *budget.ContextBudget) domain.TaskOutcome {
	outcome := domain.TaskOutcome{Decision: decision}

	if err := d.validate(decision); err != nil {
		return d.finish(outcome, caller, err)
	}
	if decision.Empty() {
		return d.finish(outcome, caller, nil)
	}

	for _, workerID := range decision.PrimaryWorkers {
		// Cancellation stops before the next sequential step.
		if err := ctx.Err(); err != nil {
			return d.finish(outcome, caller, domain.WrapEngineError(
				domain.ErrWorkerFailed.Code, "dispatch cancelled", err))
		}

		result, err := d.runWorker(ctx, workerID, req, caller)
		if err != nil {
			d.log.Warn("primary worker failed, aborting sequence",
				zap.String("worker_id", workerID), zap.Error(err))
			return d.finish(outcome, caller, err)
		}
		outcome.Results = append(outcome.Results, result)
	}

	for _, group := range decision.ParallelGroups {
		results := make([]domain.WorkResult, len(group))
		errs := make([]error, len(group))

		// Zero-value group: a sibling failure does not cancel the others.
		var g errgroup.Group
		g.SetLimit(d.cfg.MaxParallel)
		for i, workerID := range group {
			g.Go(func() error {
				results[i], errs[i] = d.runWorker(ctx, workerID, req, caller)
				return errs[i]
			})
		}
		groupErr := g.Wait()

		for i := range group {
			if errs[i] == nil {
				outcome.Results = append(outcome.Results, results[i])
			}
		}
		if groupErr != nil {
			d.log.Warn("parallel group member failed, aborting remaining groups",
				zap.Error(groupErr))
			return d.finish(outcome, caller, groupErr)
		}
	}

	return d.finish(outcome, caller, nil)
}

// runWorker executes one worker with a fresh delegated budget and forwards
// its quality events immediately, in the order the worker reported them.
func (d *Dispatcher) runWorker(ctx context.Context, workerID string, req domain.TaskRequest, caller *budget.ContextBudget) (domain.WorkResult, error) {
	profile, err := d.registry.Lookup(workerID)
	if err != nil {
		return domain.WorkResult{}, err
	}

	brief := BuildBrief(profile, req, caller.Band())
	workerBudget := caller.Delegate(profile.CostHint)

	d.log.Debug("dispatching worker",
		zap.String("worker_id", workerID),
		zap.String("cost_hint", string(profile.CostHint)))

	result, err := d.exec.Execute(ctx, brief, req, workerBudget)
	if err != nil {
		if _, ok := domain.AsEngineError(err); !ok {
			err = domain.WrapEngineError(domain.ErrWorkerFailed.Code,
				fmt.Sprintf("worker %s failed", workerID), err)
		}
		return domain.WorkResult{}, err
	}
	result.WorkerID = workerID
	result.BudgetUsedPercent = workerBudget.Fullness()

	for _, ev := range result.Events {
		if _, err := d.events.Apply(ctx, ev); err != nil {
			d.log.Warn("quality event rejected",
				zap.String("worker_id", workerID),
				zap.String("reason", ev.ReasonCode),
				zap.Error(err))
		}
	}
	return result, nil
}

// validate checks the decision against the registry before any worker runs:
// unknown ids and duplicate ids both make the whole decision unusable.
func (d *Dispatcher) validate(decision domain.RoutingDecision) error {
	seen := make(map[string]bool)
	for _, id := range decision.WorkerIDs() {
		if _, err := d.registry.Lookup(id); err != nil {
			return domain.NewEngineError(domain.ErrUnknownWorkerInDecision.Code,
				"decision references unknown worker "+id)
		}
		if seen[id] {
			return domain.NewEngineError(domain.ErrDuplicateWorkerInDecision.Code,
				"decision references worker "+id+" more than once")
		}
		seen[id] = true
	}
	return nil
}

func (d *Dispatcher) finish(outcome domain.TaskOutcome, caller *budget.ContextBudget, err error) domain.TaskOutcome {
	if err != nil {
		outcome.Aborted = true
		if ee, ok := domain.AsEngineError(err); ok {
			outcome.Err = ee
		} else {
			outcome.Err = domain.NewEngineError(domain.ErrInternal.Code, err.Error())
		}
	}
	outcome.FinalBudgetPercent = caller.Fullness()
	outcome.FinalStanding = d.events.Standing()
	return outcome
}
