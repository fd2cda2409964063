package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/trellis/pkg/events"
	"github.com/dukex/trellis/pkg/mocks"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func saveExecution(t *testing.T, store *file.Persistence, id string, status models.ExecutionStatus) {
	t.Helper()

	execution := &models.WorkflowExecution{
		ID:         id,
		WorkflowID: "wf-1",
		Status:     status,
		StartedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Steps:      []models.WorkflowExecutionStep{},
	}

	if status == models.ExecutionStatusWaiting {
		resumeAt := execution.StartedAt.Add(time.Hour)
		execution.ResumeAt = &resumeAt
	}

	if status.IsTerminal() {
		completedAt := execution.StartedAt.Add(time.Minute)
		execution.CompletedAt = &completedAt
	}

	require.NoError(t, store.ExecutionRepository().Save(context.Background(), execution))
}

func TestExecution_Cancel(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	scheduler := &mocks.MockScheduler{}
	publisher := &mocks.MockEventPublisher{}
	service := NewExecution(slog.Default(), store, scheduler, publisher)
	ctx := context.Background()

	saveExecution(t, store, "running", models.ExecutionStatusRunning)
	saveExecution(t, store, "waiting", models.ExecutionStatusWaiting)
	saveExecution(t, store, "done", models.ExecutionStatusCompleted)

	t.Run("running execution is flagged", func(t *testing.T) {
		execution, err := service.Cancel(ctx, "running")
		require.NoError(t, err)

		assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
		assert.True(t, execution.CancelRequested)
	})

	t.Run("waiting execution ends immediately", func(t *testing.T) {
		scheduler.On("CancelResume", mock.Anything, "waiting").Return(errors.New("ignored")).Once()
		publisher.On("Publish", mock.Anything, "waiting", mock.MatchedBy(func(event events.ExecutionEvent) bool {
			return event.Type == events.ExecutionCancelledEvent
		})).Return(nil).Once()

		execution, err := service.Cancel(ctx, "waiting")
		require.NoError(t, err)

		assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
		assert.NotNil(t, execution.CompletedAt)
		assert.Nil(t, execution.ResumeAt)
	})

	t.Run("finished execution conflicts", func(t *testing.T) {
		_, err := service.Cancel(ctx, "done")

		assert.True(t, IsConflictError(err))
	})

	t.Run("terminal status without completion time conflicts", func(t *testing.T) {
		require.NoError(t, store.ExecutionRepository().Save(ctx, &models.WorkflowExecution{
			ID:         "failed-no-timestamp",
			WorkflowID: "wf-1",
			Status:     models.ExecutionStatusFailed,
			StartedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Steps:      []models.WorkflowExecutionStep{},
		}))

		_, err := service.Cancel(ctx, "failed-no-timestamp")
		assert.True(t, IsConflictError(err))

		stored, err := store.ExecutionRepository().GetByID(ctx, "failed-no-timestamp")
		require.NoError(t, err)
		assert.False(t, stored.CancelRequested)
	})

	t.Run("unknown execution", func(t *testing.T) {
		_, err := service.Cancel(ctx, "missing")

		assert.True(t, IsNotFound(err))
	})

	scheduler.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestExecution_List(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	service := NewExecution(slog.Default(), store, nil, nil)
	ctx := context.Background()

	saveExecution(t, store, "one", models.ExecutionStatusCompleted)
	saveExecution(t, store, "two", models.ExecutionStatusFailed)

	testCases := []struct {
		name    string
		opts    persistence.ListExecutionsOptions
		wantLen int
		wantErr bool
	}{
		{name: "defaults", wantLen: 2},
		{name: "by status", opts: persistence.ListExecutionsOptions{Status: models.ExecutionStatusFailed}, wantLen: 1},
		{name: "by workflow", opts: persistence.ListExecutionsOptions{WorkflowID: "other"}, wantLen: 0},
		{name: "limit", opts: persistence.ListExecutionsOptions{Limit: 1}, wantLen: 1},
		{name: "negative limit", opts: persistence.ListExecutionsOptions{Limit: -1}, wantErr: true},
		{name: "unknown status", opts: persistence.ListExecutionsOptions{Status: "stuck"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			executions, err := service.List(ctx, tc.opts)

			if tc.wantErr {
				assert.True(t, IsValidationError(err))

				return
			}

			require.NoError(t, err)
			assert.Len(t, executions, tc.wantLen)
		})
	}
}
