package exec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/taskroute/engine/internal/budget"
	"github.com/taskroute/engine/internal/domain"
)

// invocation is the JSON envelope written to the worker's stdin.
type invocation struct {
	Brief   domain.WorkerBrief `json:"brief"`
	Request domain.TaskRequest `json:"request"`
}

// Runner executes workers as subprocesses, one process per invocation.
// It implements the dispatcher's Executor boundary.
type Runner struct {
	registry *ProviderRegistry
	log      *zap.Logger
}

// NewRunner creates a Runner over the given provider registry. log may be nil.
func NewRunner(registry *ProviderRegistry, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{registry: registry, log: log}
}

// Execute launches the worker's provider process, feeds it the brief and
// request on stdin, and reads a WorkResult JSON line from stdout. The
// worker's reported budget usage is charged to its delegated budget. A
// provider timeout maps to WorkerTimeout; any other process failure maps
// to WorkerFailed.
func (r *Runner) Execute(ctx context.Context, brief domain.WorkerBrief, req domain.TaskRequest, b *budget.ContextBudget) (domain.WorkResult, error) {
	spec, err := r.registry.Resolve(brief.WorkerID)
	if err != nil {
		return domain.WorkResult{}, err
	}

	if spec.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(spec.TimeoutSec)*time.Second)
		defer cancel()
	}

	input, err := json.Marshal(invocation{Brief: brief, Request: req})
	if err != nil {
		return domain.WorkResult{}, domain.WrapEngineError(domain.ErrInternal.Code,
			"marshal invocation", err)
	}

	cmd := osexec.CommandContext(ctx, spec.Command, spec.Args...)
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range spec.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	cmd.Stdin = bytes.NewReader(append(input, '\n'))

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	r.log.Debug("launching worker process",
		zap.String("worker_id", brief.WorkerID),
		zap.String("command", spec.Command))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return domain.WorkResult{}, domain.WrapEngineError(domain.ErrWorkerTimeout.Code,
				fmt.Sprintf("worker %s timed out", brief.WorkerID), ctx.Err())
		}
		return domain.WorkResult{}, domain.WrapEngineError(domain.ErrWorkerFailed.Code,
			fmt.Sprintf("worker %s process failed", brief.WorkerID), err)
	}

	result, err := parseResult(stdout.Bytes())
	if err != nil {
		return domain.WorkResult{}, domain.WrapEngineError(domain.ErrWorkerFailed.Code,
			fmt.Sprintf("worker %s produced no result", brief.WorkerID), err)
	}

	if result.BudgetUsedPercent > 0 {
		if _, err := b.Charge(result.BudgetUsedPercent); err != nil {
			return domain.WorkResult{}, err
		}
	}
	return result, nil
}

// parseResult scans stdout for the worker's result line. Workers may emit
// log lines before it; the last line that unmarshals into a WorkResult wins.
func parseResult(output []byte) (domain.WorkResult, error) {
	var result domain.WorkResult
	found := false

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var candidate domain.WorkResult
		if err := json.Unmarshal(line, &candidate); err != nil {
			continue
		}
		result = candidate
		found = true
	}
	if err := scanner.Err(); err != nil {
		return domain.WorkResult{}, err
	}
	if !found {
		return domain.WorkResult{}, errors.New("no result line on stdout")
	}
	return result, nil
}
