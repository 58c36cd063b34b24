package dispatch

import (
	"fmt"

	"github.com/taskroute/engine/internal/domain"
)

// BuildBrief assembles the compact context handed to a worker: the task
// objective, the caller's budget band, and the profile-derived constraints.
// Workers never see the caller's raw context, only this digest.
func BuildBrief(profile domain.WorkerProfile, req domain.TaskRequest, band domain.BudgetBand) domain.WorkerBrief {
	constraints := []string{
		"budget_band=" + string(band),
		"cost_hint=" + string(profile.CostHint),
	}
	if req.SizeEstimateLines != nil {
		constraints = append(constraints,
			fmt.Sprintf("size_estimate_lines=%d", *req.SizeEstimateLines))
	}
	for _, tool := range profile.ToolPermissions {
		constraints = append(constraints, "tool="+tool)
	}

	return domain.WorkerBrief{
		WorkerID:    profile.ID,
		Objective:   req.Description,
		DomainHints: req.DomainHints,
		Constraints: constraints,
		BudgetBand:  band,
		CostHint:    profile.CostHint,
	}
}
