package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/trellis/pkg/mocks"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/persistence/file"
	"github.com/dukex/trellis/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newWorkflowService(t *testing.T) (*Workflow, *file.Persistence, *mocks.MockScheduler) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	scheduler := &mocks.MockScheduler{}

	t.Cleanup(func() { scheduler.AssertExpectations(t) })

	return NewWorkflow(slog.Default(), store, scheduler), store, scheduler
}

func TestWorkflow_Create(t *testing.T) {
	service, _, scheduler := newWorkflowService(t)
	ctx := context.Background()

	scheduler.On("UnregisterCron", mock.Anything, mock.AnythingOfType("string")).Return(nil).Once()

	input := testutil.CreateTestWorkflow(testutil.WithID("client-chosen"))
	input.ExecutionCount = 7

	created, err := service.Create(ctx, input)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.NotEqual(t, "client-chosen", created.ID)
	assert.Zero(t, created.ExecutionCount)

	fetched, err := service.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, fetched.Name)
}

func TestWorkflow_CreateRejectsInvalid(t *testing.T) {
	service, store, _ := newWorkflowService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, testutil.CreateTestWorkflow(testutil.WithName("x")))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	all, err := store.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWorkflow_ScheduledLifecycle(t *testing.T) {
	service, _, scheduler := newWorkflowService(t)
	ctx := context.Background()

	scheduler.On("RegisterCron", mock.Anything, mock.AnythingOfType("string"), "0 9 * * *").Return(nil).Once()

	created, err := service.Create(ctx, testutil.CreateTestWorkflow(testutil.WithSchedule("0 9 * * *")))
	require.NoError(t, err)

	scheduler.On("UnregisterCron", mock.Anything, created.ID).Return(nil).Twice()

	disabled, err := service.SetEnabled(ctx, created.ID, false)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	require.NoError(t, service.Delete(ctx, created.ID))

	_, err = service.FetchByID(ctx, created.ID)
	assert.True(t, IsNotFound(err))
}

func TestWorkflow_UpdateKeepsStatistics(t *testing.T) {
	service, store, scheduler := newWorkflowService(t)
	ctx := context.Background()

	existing := testutil.CreateTestWorkflow()
	existing.ExecutionCount = 3
	require.NoError(t, store.WorkflowRepository().Save(ctx, existing))

	scheduler.On("UnregisterCron", mock.Anything, existing.ID).Return(nil)

	replacement := testutil.CreateTestWorkflow(
		testutil.WithName("Renamed workflow"),
		testutil.WithTrigger(models.TriggerFormSubmitted),
	)
	replacement.ExecutionCount = 0
	replacement.CreatedBy = "someone-else"

	updated, err := service.Update(ctx, existing.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, updated.ID)
	assert.Equal(t, "Renamed workflow", updated.Name)
	assert.Equal(t, models.TriggerFormSubmitted, updated.Trigger.Type)
	assert.Equal(t, 3, updated.ExecutionCount)
	assert.Equal(t, "user-1", updated.CreatedBy)
	assert.True(t, updated.CreatedAt.Equal(existing.CreatedAt))
}

func TestWorkflow_UpdateMissing(t *testing.T) {
	service, _, _ := newWorkflowService(t)

	_, err := service.Update(context.Background(), "missing", testutil.CreateTestWorkflow())

	assert.True(t, IsNotFound(err))
}

func TestWorkflow_CronFailureIsReported(t *testing.T) {
	service, _, scheduler := newWorkflowService(t)

	scheduler.On("RegisterCron", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("store offline"))

	created, err := service.Create(context.Background(), testutil.CreateTestWorkflow(testutil.WithSchedule("*/5 * * * *")))

	require.Error(t, err)
	assert.ErrorContains(t, err, "store offline")
	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID)
}

func TestWorkflow_ListAndHealth(t *testing.T) {
	service, store, _ := newWorkflowService(t)
	ctx := context.Background()

	require.NoError(t, store.WorkflowRepository().Save(ctx, testutil.CreateTestWorkflow(testutil.WithID("b"), testutil.WithCreatedAt(time.Hour))))
	require.NoError(t, store.WorkflowRepository().Save(ctx, testutil.CreateTestWorkflow(testutil.WithID("a"), testutil.WithDisabled())))

	enabled := true
	listed, err := service.List(ctx, persistence.ListWorkflowsOptions{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "b", listed[0].ID)

	message, healthy := service.HealthCheck(ctx)
	assert.True(t, healthy)
	assert.Equal(t, "Persistence layer is healthy", message)
}
