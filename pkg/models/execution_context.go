package models

// ExecutionContext carries the data an execution's actions are interpolated
// and evaluated against.
type ExecutionContext struct {
	ExecutionID  string         `json:"execution_id"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowName string         `json:"workflow_name"`
	TriggerType  TriggerType    `json:"trigger_type"`
	TriggeredBy  string         `json:"triggered_by"`
	TriggerData  map[string]any `json:"trigger_data,omitempty"`
	StepResults  map[string]any `json:"step_results,omitempty"`
}

// NewExecutionContext builds the context of an execution, replaying the
// results of the steps it already recorded.
func NewExecutionContext(execution *WorkflowExecution) *ExecutionContext {
	execCtx := &ExecutionContext{
		ExecutionID:  execution.ID,
		WorkflowID:   execution.WorkflowID,
		WorkflowName: execution.WorkflowName,
		TriggerType:  execution.TriggerType,
		TriggeredBy:  execution.TriggeredBy,
		TriggerData:  execution.TriggerData,
		StepResults:  make(map[string]any),
	}

	execCtx.replay(execution.Steps)

	return execCtx
}

func (c *ExecutionContext) replay(steps []WorkflowExecutionStep) {
	for _, step := range steps {
		if step.Status != StepStatusCompleted {
			continue
		}

		if step.ActionType == ActionConditionalBranch {
			c.replay(step.SubSteps())
		}

		c.SetStepResult(step.ActionID, step.Result)
	}
}

// SetStepResult exposes a completed step's result as steps.<actionID>.
func (c *ExecutionContext) SetStepResult(actionID string, result map[string]any) {
	if c.StepResults == nil {
		c.StepResults = make(map[string]any)
	}

	if result == nil {
		result = map[string]any{}
	}

	c.StepResults[actionID] = result
}

// Data returns the lookup tree used for {{path}} resolution and conditions.
// Trigger payload keys sit at the top level; the reserved keys trigger,
// workflow, execution and steps shadow payload keys of the same name. A
// shadowed payload key stays reachable as trigger.<key>. Trigger conditions
// are evaluated against the raw payload, so there they see the payload key.
func (c *ExecutionContext) Data() map[string]any {
	data := make(map[string]any, len(c.TriggerData)+4)

	for key, value := range c.TriggerData {
		data[key] = value
	}

	trigger := c.TriggerData
	if trigger == nil {
		trigger = map[string]any{}
	}

	steps := c.StepResults
	if steps == nil {
		steps = map[string]any{}
	}

	data["trigger"] = trigger
	data["steps"] = steps
	data["workflow"] = map[string]any{
		"id":   c.WorkflowID,
		"name": c.WorkflowName,
	}
	data["execution"] = map[string]any{
		"id":           c.ExecutionID,
		"triggered_by": c.TriggeredBy,
		"trigger_type": string(c.TriggerType),
	}

	return data
}
