// Package classify turns a task request into a routing decision.
package classify

import (
	"fmt"
	"strings"

	"github.com/taskroute/engine/internal/budget"
	"github.com/taskroute/engine/internal/domain"
	"github.com/taskroute/engine/internal/registry"
)

// Size thresholds, in estimated lines of code.
const (
	trivialMaxLines = 30
	simpleMaxLines  = 50
)

// Conventional capability tags for the complex-task pipeline stages.
const (
	capExplore   = "explore"
	capArchitect = "architect"
	capImplement = "implement"
)

// pipelineRoles is the stage order for complex work.
var pipelineRoles = []string{capExplore, capArchitect, capImplement}

// Classifier selects workers for a task using the registry and the caller's
// context budget. It is stateless and safe for concurrent use.
type Classifier struct {
	registry *registry.Registry
}

// New creates a Classifier over the given registry.
func New(reg *registry.Registry) *Classifier {
	return &Classifier{registry: reg}
}

// Classify produces a RoutingDecision for the request.
//
// An empty decision is a valid terminal outcome meaning "work directly";
// it is only produced for trivial work under an unconstrained budget.
// When the caller's budget is above the delegate-only threshold, delegation
// is forced regardless of complexity. If domain hints are given and no
// worker's domains intersect them, Classify fails with NoMatchingWorker
// instead of falling back to an unrelated worker.
func (c *Classifier) Classify(req domain.TaskRequest, b *budget.ContextBudget) (domain.RoutingDecision, error) {
	est := estimate(req)
	hints := distinct(req.DomainHints)

	if len(hints) > 0 && !c.anyDomainMatch(hints) {
		return domain.RoutingDecision{}, domain.NewEngineError(
			domain.ErrNoMatchingWorker.Code,
			fmt.Sprintf("no worker matches domains %v", hints),
		)
	}

	fullness := b.Fullness()
	if fullness > 70 {
		return c.forcedDelegation(est, hints, fullness)
	}

	switch est {
	case domain.ComplexityTrivial:
		return domain.RoutingDecision{
			Complexity: domain.ComplexityTrivial,
			Rationale:  "trivial task: small estimate with no domain hints, work directly",
		}, nil
	case domain.ComplexitySimple:
		return c.simpleDecision(hints)
	default:
		// Complex, and Unknown treated as Complex: over-delegation is
		// preferred to under-delegation, which risks budget exhaustion.
		return c.complexDecision(est, hints)
	}
}

// estimate computes the complexity class from the request alone.
func estimate(req domain.TaskRequest) domain.Complexity {
	hints := distinct(req.DomainHints)
	crossCutting := len(hints) > 1

	if req.SizeEstimateLines == nil {
		return domain.ComplexityUnknown
	}
	size := *req.SizeEstimateLines

	switch {
	case size < trivialMaxLines && len(hints) == 0:
		return domain.ComplexityTrivial
	case size < simpleMaxLines && !crossCutting:
		return domain.ComplexitySimple
	default:
		return domain.ComplexityComplex
	}
}

// forcedDelegation routes even otherwise-trivial work through a worker
// because the caller's own budget is constrained above 70%.
func (c *Classifier) forcedDelegation(est domain.Complexity, hints []string, fullness int) (domain.RoutingDecision, error) {
	worker, ok := c.bestForRole(capExplore, hints, nil)
	if !ok {
		// No explore-capable worker: fall back to the best domain match.
		worker, ok = c.bestMatch(hints, nil)
	}
	if !ok {
		return domain.RoutingDecision{}, domain.NewEngineError(
			domain.ErrNoMatchingWorker.Code,
			"budget requires delegation but no worker is available",
		)
	}

	return domain.RoutingDecision{
		PrimaryWorkers: []string{worker.ID},
		Complexity:     resolve(est),
		Rationale: fmt.Sprintf(
			"context budget at %d%% (band %s): delegation forced, %s selected for an information-gathering pass",
			fullness, budget.BandFor(fullness), worker.ID),
	}, nil
}

// simpleDecision selects the single best-matching worker by domain overlap.
func (c *Classifier) simpleDecision(hints []string) (domain.RoutingDecision, error) {
	worker, ok := c.bestForRole(capImplement, hints, nil)
	if !ok {
		worker, ok = c.bestMatch(hints, nil)
	}
	if !ok {
		return domain.RoutingDecision{}, domain.NewEngineError(
			domain.ErrNoMatchingWorker.Code,
			"no worker available for simple task",
		)
	}

	return domain.RoutingDecision{
		PrimaryWorkers: []string{worker.ID},
		Complexity:     domain.ComplexitySimple,
		Rationale:      fmt.Sprintf("simple task: %s is the best domain match for %v", worker.ID, hints),
	}, nil
}

// complexDecision builds the explore -> architect -> implement pipeline,
// plus a parallel exploration group when several independent domain hints
// are present.
func (c *Classifier) complexDecision(est domain.Complexity, hints []string) (domain.RoutingDecision, error) {
	taken := make(map[string]bool)
	var primaries []string
	var stages []string

	for _, role := range pipelineRoles {
		worker, ok := c.bestForRole(role, hints, taken)
		if !ok {
			continue
		}
		taken[worker.ID] = true
		primaries = append(primaries, worker.ID)
		stages = append(stages, fmt.Sprintf("%s=%s", role, worker.ID))
	}

	if len(primaries) == 0 {
		// No role-tagged workers at all: run the best domain match alone.
		worker, ok := c.bestMatch(hints, taken)
		if !ok {
			return domain.RoutingDecision{}, domain.NewEngineError(
				domain.ErrNoMatchingWorker.Code,
				"no worker available for complex task",
			)
		}
		taken[worker.ID] = true
		primaries = append(primaries, worker.ID)
		stages = append(stages, "solo="+worker.ID)
	}

	var groups [][]string
	if len(hints) > 1 {
		var group []string
		for _, hint := range hints {
			worker, ok := c.bestForRole(capExplore, []string{hint}, taken)
			if !ok {
				continue
			}
			taken[worker.ID] = true
			group = append(group, worker.ID)
		}
		// A group of one is just sequential work with extra bookkeeping.
		if len(group) > 1 {
			groups = append(groups, group)
		} else if len(group) == 1 {
			primaries = append(primaries, group[0])
			stages = append(stages, "extra-explore="+group[0])
		}
	}

	rationale := fmt.Sprintf("%s task: pipeline %s", resolve(est), strings.Join(stages, " -> "))
	if len(groups) > 0 {
		rationale += fmt.Sprintf("; parallel exploration of %d independent domains", len(groups[0]))
	}

	return domain.RoutingDecision{
		PrimaryWorkers: primaries,
		ParallelGroups: groups,
		Complexity:     resolve(est),
		Rationale:      rationale,
	}, nil
}

// bestForRole picks the best domain match among workers carrying the given
// capability tag, skipping already-taken ids. Ties break by registration
// order so decisions stay reproducible.
func (c *Classifier) bestForRole(role string, hints []string, taken map[string]bool) (domain.WorkerProfile, bool) {
	return pickBest(c.registry.FindByCapability(role), hints, taken)
}

// bestMatch picks the best domain match across the whole registry.
func (c *Classifier) bestMatch(hints []string, taken map[string]bool) (domain.WorkerProfile, bool) {
	return pickBest(c.registry.All(), hints, taken)
}

func pickBest(candidates []domain.WorkerProfile, hints []string, taken map[string]bool) (domain.WorkerProfile, bool) {
	var best domain.WorkerProfile
	bestScore := -1
	for _, p := range candidates {
		if taken != nil && taken[p.ID] {
			continue
		}
		score := overlap(p, hints)
		if len(hints) > 0 && score == 0 {
			continue
		}
		if score > bestScore {
			best = p
			bestScore = score
		}
	}
	return best, bestScore >= 0
}

func overlap(p domain.WorkerProfile, hints []string) int {
	n := 0
	for _, h := range hints {
		if p.HasDomain(h) {
			n++
		}
	}
	return n
}

// anyDomainMatch reports whether any registered worker covers at least one
// of the hints.
func (c *Classifier) anyDomainMatch(hints []string) bool {
	for _, hint := range hints {
		if len(c.registry.FindByDomain(hint)) > 0 {
			return true
		}
	}
	return false
}

// resolve folds the conservative Unknown estimate into Complex.
func resolve(est domain.Complexity) domain.Complexity {
	if est == domain.ComplexityUnknown {
		return domain.ComplexityComplex
	}
	return est
}

func distinct(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
