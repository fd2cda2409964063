package persistence

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestEvictable(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(id string, status models.ExecutionStatus, minute int) *models.WorkflowExecution {
		return &models.WorkflowExecution{ID: id, Status: status, StartedAt: base.Add(time.Duration(minute) * time.Minute)}
	}

	tests := []struct {
		name       string
		executions []*models.WorkflowExecution
		retention  int
		want       []string
	}{
		{
			name:       "under retention",
			executions: []*models.WorkflowExecution{at("a", models.ExecutionStatusCompleted, 0)},
			retention:  2,
			want:       nil,
		},
		{
			name: "oldest finished first",
			executions: []*models.WorkflowExecution{
				at("new", models.ExecutionStatusFailed, 3),
				at("old", models.ExecutionStatusCompleted, 1),
				at("mid", models.ExecutionStatusCancelled, 2),
			},
			retention: 1,
			want:      []string{"old", "mid"},
		},
		{
			name: "unfinished are kept",
			executions: []*models.WorkflowExecution{
				at("run", models.ExecutionStatusRunning, 0),
				at("wait", models.ExecutionStatusWaiting, 1),
				at("done", models.ExecutionStatusCompleted, 2),
			},
			retention: 1,
			want:      []string{"done"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evictable(tt.executions, tt.retention))
		})
	}
}

func TestKeyedMutex(t *testing.T) {
	locks := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter int
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := locks.Lock("k")
			counter++
			unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locks.locks)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("0197a3f2-wf"))

	for _, id := range []string{"", "../x", "a/b", `a\b`} {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, id)
	}
}

func TestTypedErrors(t *testing.T) {
	err := NewWorkflowError("GetByID", "w1", ErrWorkflowNotFound)

	assert.True(t, IsWorkflowNotFound(err))
	assert.False(t, IsExecutionNotFound(err))
	assert.Equal(t, "GetByID operation failed for workflow w1: workflow not found", err.Error())

	var execErr *ExecutionError
	assert.True(t, errors.As(NewExecutionError("Update", "e1", ErrExecutionFinished), &execErr))
	assert.True(t, IsExecutionFinished(execErr))
}

func TestListOptionsMatch(t *testing.T) {
	deletedAt := time.Now()
	disabled := false

	live := &models.Workflow{Trigger: models.WorkflowTrigger{Type: models.TriggerFormSubmitted}}
	deleted := &models.Workflow{Trigger: models.WorkflowTrigger{Type: models.TriggerFormSubmitted}, DeletedAt: &deletedAt}

	assert.True(t, ListWorkflowsOptions{}.Matches(live))
	assert.False(t, ListWorkflowsOptions{}.Matches(deleted))
	assert.True(t, ListWorkflowsOptions{IncludeDeleted: true}.Matches(deleted))
	assert.True(t, ListWorkflowsOptions{Enabled: &disabled}.Matches(live))
	assert.False(t, ListWorkflowsOptions{TriggerType: models.TriggerFileUploaded}.Matches(live))

	execution := &models.WorkflowExecution{WorkflowID: "w1", Status: models.ExecutionStatusWaiting}
	assert.True(t, ListExecutionsOptions{WorkflowID: "w1"}.Matches(execution))
	assert.False(t, ListExecutionsOptions{Status: models.ExecutionStatusCompleted}.Matches(execution))
}
