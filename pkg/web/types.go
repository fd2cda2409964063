// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/dukex/trellis/pkg/models"

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WorkflowRequest is the body of workflow create and update requests.
// Definition rules are enforced by the workflow service.
type WorkflowRequest struct {
	Name        string                  `json:"name"        validate:"required,min=3"`
	Description string                  `json:"description"`
	Enabled     *bool                   `json:"enabled,omitempty"`
	Trigger     models.WorkflowTrigger  `json:"trigger"`
	Actions     []models.WorkflowAction `json:"actions"     validate:"required,min=1"`
	CreatedBy   string                  `json:"created_by"`
}

// ToWorkflow builds the definition the request describes. Workflows are
// enabled unless the request says otherwise.
func (r WorkflowRequest) ToWorkflow() *models.Workflow {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Enabled:     enabled,
		Trigger:     r.Trigger,
		Actions:     r.Actions,
		CreatedBy:   r.CreatedBy,
	}
}

// DispatchEventRequest reports a domain event to the engine.
type DispatchEventRequest struct {
	TriggerType models.TriggerType `json:"trigger_type" validate:"required"`
	Payload     map[string]any     `json:"payload"`
	TriggeredBy string             `json:"triggered_by" validate:"required"`
}

// DispatchEventResponse lists the executions an event started. Error is set
// when some workflows could not be run or recorded.
type DispatchEventResponse struct {
	Executions []*models.WorkflowExecution `json:"executions"`
	Count      int                         `json:"count"`
	Error      string                      `json:"error,omitempty"`
}

// ExecutionSummary is the list form of an execution, without step payloads.
type ExecutionSummary struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	WorkflowName string                 `json:"workflow_name"`
	TriggerType  models.TriggerType     `json:"trigger_type"`
	Status       models.ExecutionStatus `json:"status"`
	StartedAt    string                 `json:"started_at"`
	CompletedAt  *string                `json:"completed_at,omitempty"`
	TriggeredBy  string                 `json:"triggered_by"`
	StepsCount   int                    `json:"steps_count"`
	Error        string                 `json:"error,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// TransformExecutionSummary strips an execution down to its summary.
func TransformExecutionSummary(execution *models.WorkflowExecution) ExecutionSummary {
	summary := ExecutionSummary{
		ID:           execution.ID,
		WorkflowID:   execution.WorkflowID,
		WorkflowName: execution.WorkflowName,
		TriggerType:  execution.TriggerType,
		Status:       execution.Status,
		StartedAt:    execution.StartedAt.Format(timeLayout),
		TriggeredBy:  execution.TriggeredBy,
		StepsCount:   len(execution.Steps),
		Error:        execution.Error,
	}

	if execution.CompletedAt != nil {
		completedAt := execution.CompletedAt.Format(timeLayout)
		summary.CompletedAt = &completedAt
	}

	return summary
}
