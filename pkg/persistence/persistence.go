// Package persistence provides the data storage abstraction for workflow
// definitions, execution history and scheduler state.
package persistence

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/trellis/pkg/models"
)

// DefaultHistoryRetention is how many executions the history keeps globally.
const DefaultHistoryRetention = 100

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	SchedulerRepository() SchedulerRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters workflow listings. Zero values match everything
// except soft-deleted workflows.
type ListWorkflowsOptions struct {
	TriggerType    models.TriggerType
	Enabled        *bool
	IncludeDeleted bool
}

// Matches reports whether workflow passes the filter.
func (o ListWorkflowsOptions) Matches(workflow *models.Workflow) bool {
	if workflow.IsDeleted() && !o.IncludeDeleted {
		return false
	}

	if o.TriggerType != "" && workflow.Trigger.Type != o.TriggerType {
		return false
	}

	if o.Enabled != nil && workflow.Enabled != *o.Enabled {
		return false
	}

	return true
}

// WorkflowRepository is the definition store.
type WorkflowRepository interface {
	// Save inserts or replaces a workflow, assigning an ID and timestamps when missing.
	Save(ctx context.Context, workflow *models.Workflow) error
	// GetByID reports soft-deleted workflows as ErrWorkflowNotFound.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	// List returns matching workflows ordered by creation time, oldest first.
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.Workflow, error)
	ByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error)
	// Update applies fn to the stored live workflow and persists the result.
	// Calls for the same id are serialized.
	Update(ctx context.Context, id string, fn func(*models.Workflow) error) (*models.Workflow, error)
	// Delete soft deletes the workflow.
	Delete(ctx context.Context, id string) error
}

// ListExecutionsOptions filters history queries.
type ListExecutionsOptions struct {
	WorkflowID string
	Status     models.ExecutionStatus
	Limit      int
}

// Matches reports whether execution passes the filter. Limit is ignored.
func (o ListExecutionsOptions) Matches(execution *models.WorkflowExecution) bool {
	if o.WorkflowID != "" && execution.WorkflowID != o.WorkflowID {
		return false
	}

	if o.Status != "" && execution.Status != o.Status {
		return false
	}

	return true
}

// ExecutionRepository is the execution history store. It keeps a bounded
// number of records; running and waiting executions are never evicted.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	// List returns matching executions, most recent first.
	List(ctx context.Context, opts ListExecutionsOptions) ([]*models.WorkflowExecution, error)
	// Update applies fn to the stored execution and persists the result. Calls
	// for the same id are serialized; finished executions are rejected with
	// ErrExecutionFinished.
	Update(ctx context.Context, id string, fn func(*models.WorkflowExecution) error) (*models.WorkflowExecution, error)
}

// SchedulerRepository persists resume records and cron schedules.
type SchedulerRepository interface {
	SaveResume(ctx context.Context, record *models.ResumeRecord) error
	DeleteResume(ctx context.Context, executionID string) error
	DueResumes(ctx context.Context, now time.Time) ([]*models.ResumeRecord, error)

	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	ScheduleByWorkflow(ctx context.Context, workflowID string) (*models.Schedule, error)
	DeleteScheduleByWorkflow(ctx context.Context, workflowID string) error
	DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	Schedules(ctx context.Context) ([]*models.Schedule, error)
}

// Evictable returns the IDs of the oldest finished executions that must be
// dropped for executions to fit in retention. Unfinished records are skipped,
// so the result may leave the history above retention.
func Evictable(executions []*models.WorkflowExecution, retention int) []string {
	excess := len(executions) - retention
	if retention <= 0 || excess <= 0 {
		return nil
	}

	finished := make([]*models.WorkflowExecution, 0, len(executions))
	for _, execution := range executions {
		if execution.Status.IsTerminal() {
			finished = append(finished, execution)
		}
	}

	sort.SliceStable(finished, func(i, j int) bool {
		return finished[i].StartedAt.Before(finished[j].StartedAt)
	})

	if excess > len(finished) {
		excess = len(finished)
	}

	ids := make([]string, 0, excess)
	for _, execution := range finished[:excess] {
		ids = append(ids, execution.ID)
	}

	return ids
}
