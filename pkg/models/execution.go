package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting" // Suspended by wait_delay until ResumeAt
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known status.
func (s ExecutionStatus) IsValid() bool {
	return s == ExecutionStatusRunning || s == ExecutionStatusWaiting || s.IsTerminal()
}

// StepStatus is the state of a single attempted action.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// WorkflowExecution is one run of a workflow in response to one event.
type WorkflowExecution struct {
	ID              string                  `json:"id"`
	WorkflowID      string                  `json:"workflow_id"`
	WorkflowName    string                  `json:"workflow_name"`
	TriggerType     TriggerType             `json:"trigger_type"`
	Status          ExecutionStatus         `json:"status"`
	StartedAt       time.Time               `json:"started_at"`
	CompletedAt     *time.Time              `json:"completed_at,omitempty"`
	TriggeredBy     string                  `json:"triggered_by"`
	TriggerData     map[string]any          `json:"trigger_data,omitempty"`
	Steps           []WorkflowExecutionStep `json:"steps"`
	Error           string                  `json:"error,omitempty"`
	CancelRequested bool                    `json:"cancel_requested,omitempty"`
	ResumeAt        *time.Time              `json:"resume_at,omitempty"`
	ResumeAfter     string                  `json:"resume_after,omitempty"` // ID of the wait_delay action to continue after
}

// IsFinished reports whether completedAt has been set.
func (e *WorkflowExecution) IsFinished() bool {
	return e.CompletedAt != nil
}

// LastStep returns the most recently recorded step, or nil.
func (e *WorkflowExecution) LastStep() *WorkflowExecutionStep {
	if len(e.Steps) == 0 {
		return nil
	}

	return &e.Steps[len(e.Steps)-1]
}

// Clone returns a deep enough copy for the store and engine to mutate independently.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	out := *e

	out.Steps = make([]WorkflowExecutionStep, len(e.Steps))
	copy(out.Steps, e.Steps)

	if e.CompletedAt != nil {
		completedAt := *e.CompletedAt
		out.CompletedAt = &completedAt
	}

	if e.ResumeAt != nil {
		resumeAt := *e.ResumeAt
		out.ResumeAt = &resumeAt
	}

	return &out
}

// WorkflowExecutionStep records the attempt of one action.
type WorkflowExecutionStep struct {
	ActionID    string         `json:"action_id"`
	ActionType  ActionType     `json:"action_type"`
	Status      StepStatus     `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	ResumeAt    *time.Time     `json:"resume_at,omitempty"`
}

// StepResultSteps is the result key under which a conditional_branch step
// nests the steps of the branch it ran.
const StepResultSteps = "steps"

// SubSteps returns the nested steps of a conditional_branch step. It accepts
// both the in-memory form and the form decoded from storage.
func (s *WorkflowExecutionStep) SubSteps() []WorkflowExecutionStep {
	raw, ok := s.Result[StepResultSteps]
	if !ok || raw == nil {
		return nil
	}

	if steps, ok := raw.([]WorkflowExecutionStep); ok {
		return steps
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}

	var steps []WorkflowExecutionStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil
	}

	return steps
}
