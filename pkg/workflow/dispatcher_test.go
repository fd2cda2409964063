package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/scheduler"
	"github.com/dukex/trellis/pkg/testutil"
	"github.com/dukex/trellis/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func messagePayload() map[string]any {
	return map[string]any{
		"message": map[string]any{"channel": "sms", "body": "hello"},
		"client":  map[string]any{"id": "c-1", "email": "ada@example.com"},
	}
}

func TestDispatcher_WorkflowsRunIndependently(t *testing.T) {
	h := newHarness(t)

	failing := h.save(t, testutil.CreateTestWorkflow(
		testutil.WithName("Failing"),
		testutil.WithTrigger(models.TriggerMessageSent),
		testutil.WithActions(models.NewAction("email", 1, &models.SendEmailConfig{To: "{{client.email}}", Subject: "s", Body: "b"})),
	))
	passing := h.save(t, testutil.CreateTestWorkflow(
		testutil.WithName("Passing"),
		testutil.WithTrigger(models.TriggerMessageSent),
		testutil.WithCreatedAt(time.Minute),
	))

	h.communication.On("SendEmail", mock.Anything, "ada@example.com", "s", "b").Return(nil, errors.New("bounced"))
	h.records.On("AddNote", mock.Anything, "c-1", "created").Return(map[string]any{}, nil)

	executions, err := h.dispatcher.Dispatch(context.Background(), models.TriggerMessageSent, messagePayload(), "user-1")
	require.NoError(t, err)
	require.Len(t, executions, 2)

	assert.Equal(t, failing.ID, executions[0].WorkflowID)
	assert.Equal(t, models.ExecutionStatusFailed, executions[0].Status)
	assert.Equal(t, passing.ID, executions[1].WorkflowID)
	assert.Equal(t, models.ExecutionStatusCompleted, executions[1].Status)

	for _, id := range []string{failing.ID, passing.ID} {
		stored, err := h.store.WorkflowRepository().GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.ExecutionCount)
		assert.NotNil(t, stored.LastExecutedAt)
	}
}

func TestDispatcher_Selection(t *testing.T) {
	testCases := []struct {
		name      string
		workflow  func(*models.Workflow)
		wantCount int
	}{
		{
			name:      "disabled workflow is skipped",
			workflow:  testutil.WithDisabled(),
			wantCount: 0,
		},
		{
			name:      "other trigger type is skipped",
			workflow:  testutil.WithTrigger(models.TriggerFormSubmitted),
			wantCount: 0,
		},
		{
			name: "unmet conditions are skipped",
			workflow: testutil.WithTrigger(models.TriggerMessageSent,
				testutil.Condition("message.channel", models.OperatorEquals, "email")),
			wantCount: 0,
		},
		{
			name: "met conditions run",
			workflow: testutil.WithTrigger(models.TriggerMessageSent,
				testutil.Condition("message.channel", models.OperatorEquals, "sms"),
				testutil.Condition("message.body", models.OperatorContains, "ell")),
			wantCount: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)

			wf := h.save(t, testutil.CreateTestWorkflow(testutil.WithTrigger(models.TriggerMessageSent), tc.workflow))

			if tc.wantCount > 0 {
				h.records.On("AddNote", mock.Anything, "c-1", "created").Return(map[string]any{}, nil)
			}

			executions, err := h.dispatcher.Dispatch(context.Background(), models.TriggerMessageSent, messagePayload(), "user-1")
			require.NoError(t, err)
			assert.Len(t, executions, tc.wantCount)

			history, err := h.store.ExecutionRepository().List(context.Background(), persistence.ListExecutionsOptions{WorkflowID: wf.ID})
			require.NoError(t, err)
			assert.Len(t, history, tc.wantCount)
		})
	}
}

func TestDispatcher_RunScheduled(t *testing.T) {
	h := newHarness(t)

	firedAt := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	scheduled := h.save(t, testutil.CreateTestWorkflow(
		testutil.WithSchedule("0 9 * * *"),
		testutil.WithActions(models.NewAction("note", 1, &models.AddNoteConfig{EntityID: "daily", Note: "at {{scheduled_at}}"})),
	))

	h.records.On("AddNote", mock.Anything, "daily", "at 2025-06-02T09:00:00Z").Return(map[string]any{}, nil)

	execution, err := h.dispatcher.RunScheduled(context.Background(), scheduled.ID, firedAt)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, workflow.TriggeredByScheduler, execution.TriggeredBy)
	assert.Equal(t, models.TriggerScheduledTime, execution.TriggerType)
	assert.Equal(t, "0 9 * * *", execution.TriggerData["cron_expression"])
}

func TestDispatcher_RunScheduledRejectsUnscheduled(t *testing.T) {
	h := newHarness(t)

	plain := h.save(t, testutil.CreateTestWorkflow())
	disabled := h.save(t, testutil.CreateTestWorkflow(testutil.WithSchedule("* * * * *"), testutil.WithDisabled()))

	for _, id := range []string{plain.ID, disabled.ID} {
		_, err := h.dispatcher.RunScheduled(context.Background(), id, time.Now())
		assert.ErrorIs(t, err, workflow.ErrNotScheduled)
	}
}

func TestSchedulerHandler(t *testing.T) {
	h := newHarness(t)
	handler := workflow.NewSchedulerHandler(h.engine, h.dispatcher)

	t.Run("missing execution is handled", func(t *testing.T) {
		assert.NoError(t, handler.Resume(context.Background(), "gone"))
	})

	t.Run("missing workflow drops the schedule", func(t *testing.T) {
		err := handler.FireSchedule(context.Background(), "gone", time.Now())
		assert.ErrorIs(t, err, scheduler.ErrScheduleGone)
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("unscheduled workflow drops the schedule", func(t *testing.T) {
		wf := h.save(t, testutil.CreateTestWorkflow())

		err := handler.FireSchedule(context.Background(), wf.ID, time.Now())
		assert.ErrorIs(t, err, scheduler.ErrScheduleGone)
	})
}
