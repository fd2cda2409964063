package actions

import (
	"context"
	"fmt"

	"github.com/dukex/trellis/pkg/conditions"
	"github.com/dukex/trellis/pkg/models"
)

// conditionalBranch runs the chosen branch through the same executor. The
// sub-steps are nested in the branch step's result under "steps".
func (e *Executor) conditionalBranch(ctx context.Context, config *models.ConditionalBranchConfig, execCtx *models.ExecutionContext) (map[string]any, error) {
	matched := conditions.Evaluate(config.Conditions, execCtx.Data())

	branchName := "false"
	branch := config.FalseBranchActions

	if matched {
		branchName = "true"
		branch = config.TrueBranchActions
	}

	subSteps := make([]models.WorkflowExecutionStep, 0, len(branch))
	result := map[string]any{
		"condition_result":     matched,
		"branch":               branchName,
		models.StepResultSteps: subSteps,
	}

	for _, action := range models.SortActions(branch) {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if action.Type == models.ActionWaitDelay && !e.simulateDelays {
			return result, fmt.Errorf("branch action %s failed: wait_delay is not supported inside conditional_branch", action.ID)
		}

		subStep := e.Execute(ctx, action, execCtx)
		subSteps = append(subSteps, subStep)
		result[models.StepResultSteps] = subSteps

		if subStep.Status == models.StepStatusFailed {
			return result, fmt.Errorf("branch action %s failed: %s", action.ID, subStep.Error)
		}

		execCtx.SetStepResult(action.ID, subStep.Result)
	}

	return result, nil
}
