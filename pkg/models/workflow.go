// Package models defines the core domain models for event-driven workflow automation
package models

import (
	"sort"
	"time"
)

// TriggerType identifies the domain event kind that starts a workflow.
type TriggerType string

const (
	TriggerClientCreated        TriggerType = "client_created"
	TriggerClientUpdated        TriggerType = "client_updated"
	TriggerClientStatusChanged  TriggerType = "client_status_changed"
	TriggerMessageSent          TriggerType = "message_sent"
	TriggerMessageReceived      TriggerType = "message_received"
	TriggerAppointmentScheduled TriggerType = "appointment_scheduled"
	TriggerAppointmentCompleted TriggerType = "appointment_completed"
	TriggerFileUploaded         TriggerType = "file_uploaded"
	TriggerTaskCompleted        TriggerType = "task_completed"
	TriggerFormSubmitted        TriggerType = "form_submitted"
	TriggerScheduledTime        TriggerType = "scheduled_time" // Fired by the scheduler from trigger.schedule_time
)

// TriggerTypes lists every supported trigger type.
func TriggerTypes() []TriggerType {
	return []TriggerType{
		TriggerClientCreated,
		TriggerClientUpdated,
		TriggerClientStatusChanged,
		TriggerMessageSent,
		TriggerMessageReceived,
		TriggerAppointmentScheduled,
		TriggerAppointmentCompleted,
		TriggerFileUploaded,
		TriggerTaskCompleted,
		TriggerFormSubmitted,
		TriggerScheduledTime,
	}
}

// IsValid reports whether t is a known trigger type.
func (t TriggerType) IsValid() bool {
	for _, known := range TriggerTypes() {
		if t == known {
			return true
		}
	}

	return false
}

// Workflow is a trigger plus an ordered chain of actions.
type Workflow struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"            validate:"required,min=3"`
	Description    string           `json:"description"`
	Enabled        bool             `json:"enabled"`
	Trigger        WorkflowTrigger  `json:"trigger"`
	Actions        []WorkflowAction `json:"actions"         validate:"required,min=1"`
	CreatedBy      string           `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ExecutionCount int              `json:"execution_count"`
	LastExecutedAt *time.Time       `json:"last_executed_at,omitempty"`
	DeletedAt      *time.Time       `json:"deleted_at,omitempty"`
}

// WorkflowTrigger gates a workflow on an event type and optional conditions.
type WorkflowTrigger struct {
	Type         TriggerType         `json:"type"                    validate:"required"`
	Conditions   []WorkflowCondition `json:"conditions,omitempty"    validate:"dive"`
	ScheduleTime string              `json:"schedule_time,omitempty"` // 5-field cron, only for scheduled_time
}

// IsDeleted reports whether the workflow has been soft deleted.
func (w *Workflow) IsDeleted() bool {
	return w.DeletedAt != nil
}

// IsScheduled reports whether the workflow is started by the cron scheduler.
func (w *Workflow) IsScheduled() bool {
	return w.Trigger.Type == TriggerScheduledTime
}

// SortedActions returns the actions ordered for execution.
func (w *Workflow) SortedActions() []WorkflowAction {
	return SortActions(w.Actions)
}

// SortActions returns a copy of actions sorted by ascending order. Equal
// orders keep their list position.
func SortActions(actions []WorkflowAction) []WorkflowAction {
	sorted := make([]WorkflowAction, len(actions))
	copy(sorted, actions)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	return sorted
}
