// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/google/uuid"
)

// BaseTime is the creation time of built workflows. Each override may shift it
// to control listing order.
var BaseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// CreateTestWorkflow creates an enabled client_created workflow with a single
// add_note action. Overrides are applied in order.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A test workflow",
		Enabled:     true,
		Trigger: models.WorkflowTrigger{
			Type: models.TriggerClientCreated,
		},
		Actions: []models.WorkflowAction{
			models.NewAction("note", 1, &models.AddNoteConfig{EntityID: "{{client.id}}", Note: "created"}),
		},
		CreatedBy: "user-1",
		CreatedAt: BaseTime,
		UpdatedAt: BaseTime,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

func WithID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

func WithName(name string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Name = name
	}
}

// WithTrigger sets the trigger type and its conditions.
func WithTrigger(triggerType models.TriggerType, conditions ...models.WorkflowCondition) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Trigger = models.WorkflowTrigger{Type: triggerType, Conditions: conditions}
	}
}

// WithSchedule makes the workflow a scheduled_time workflow.
func WithSchedule(cronExpression string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Trigger = models.WorkflowTrigger{Type: models.TriggerScheduledTime, ScheduleTime: cronExpression}
	}
}

func WithActions(actions ...models.WorkflowAction) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Actions = actions
	}
}

func WithDisabled() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Enabled = false
	}
}

// WithCreatedAt offsets the creation time from BaseTime.
func WithCreatedAt(offset time.Duration) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.CreatedAt = BaseTime.Add(offset)
		w.UpdatedAt = w.CreatedAt
	}
}

// Condition builds a single AND condition.
func Condition(field string, operator models.ConditionOperator, value any) models.WorkflowCondition {
	return models.WorkflowCondition{Field: field, Operator: operator, Value: value}
}
