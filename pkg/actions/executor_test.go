package actions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/trellis/pkg/mocks"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/protocol"
	"github.com/dukex/trellis/pkg/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testPorts struct {
	notifications *mocks.MockNotificationPort
	communication *mocks.MockCommunicationPort
	records       *mocks.MockRecordPort
	webhooks      *mocks.MockWebhookClient
}

func newTestExecutor(t *testing.T, opts ...Option) (*Executor, testPorts) {
	t.Helper()

	ports := testPorts{
		notifications: &mocks.MockNotificationPort{},
		communication: &mocks.MockCommunicationPort{},
		records:       &mocks.MockRecordPort{},
		webhooks:      &mocks.MockWebhookClient{},
	}

	t.Cleanup(func() {
		ports.notifications.AssertExpectations(t)
		ports.communication.AssertExpectations(t)
		ports.records.AssertExpectations(t)
		ports.webhooks.AssertExpectations(t)
	})

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)

	executor := NewExecutor(slog.Default(), Ports{
		Notifications: ports.notifications,
		Communication: ports.communication,
		Records:       ports.records,
		Webhooks:      ports.webhooks,
	}, opts...)

	return executor, ports
}

func newExecCtx() *models.ExecutionContext {
	return &models.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		TriggerType: models.TriggerClientCreated,
		TriggeredBy: "user-1",
		TriggerData: map[string]any{
			"client": map[string]any{
				"id":     "c-1",
				"name":   "Ada",
				"email":  "ada@example.com",
				"phone":  "+15550100",
				"status": "lead",
			},
		},
	}
}

func TestExecutor_SendEmail_Interpolated(t *testing.T) {
	executor, ports := newTestExecutor(t)

	ports.communication.On("SendEmail", mock.Anything, "ada@example.com", "Welcome Ada", "Hi {{client.nickname}}").
		Return(map[string]any{"message_id": "m-1"}, nil)

	step := executor.Execute(context.Background(), models.NewAction("a1", 1, &models.SendEmailConfig{
		To:      "{{client.email}}",
		Subject: "Welcome {{ client.name }}",
		Body:    "Hi {{client.nickname}}",
	}), newExecCtx())

	assert.Equal(t, models.StepStatusCompleted, step.Status)
	assert.Equal(t, "a1", step.ActionID)
	assert.Equal(t, models.ActionSendEmail, step.ActionType)
	assert.Equal(t, map[string]any{"message_id": "m-1"}, step.Result)
	assert.Equal(t, fixedNow, *step.StartedAt)
	assert.Equal(t, fixedNow, *step.CompletedAt)
	assert.Empty(t, step.Error)
}

func TestExecutor_PortErrorFailsStep(t *testing.T) {
	executor, ports := newTestExecutor(t)

	ports.communication.On("SendSMS", mock.Anything, "+15550100", "hello").
		Return(nil, errors.New("carrier rejected message"))

	step := executor.Execute(context.Background(), models.NewAction("a1", 1, &models.SendSMSConfig{
		To:   "{{client.phone}}",
		Body: "hello",
	}), newExecCtx())

	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Equal(t, "carrier rejected message", step.Error)
	assert.NotNil(t, step.CompletedAt)
}

func TestExecutor_MissingPortFailsStep(t *testing.T) {
	executor := NewExecutor(slog.Default(), Ports{})

	step := executor.Execute(context.Background(), models.NewAction("a1", 1, &models.AddNoteConfig{EntityID: "c-1", Note: "x"}), newExecCtx())

	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Contains(t, step.Error, ErrPortNotConfigured.Error())
}

func TestExecutor_RecordActions(t *testing.T) {
	testCases := []struct {
		name   string
		config models.ActionConfig
		setup  func(records *mocks.MockRecordPort)
	}{
		{
			name:   "create task with due date",
			config: &models.CreateTaskConfig{Title: "Call {{client.name}}", EntityID: "{{client.id}}", DueInDays: 2, Priority: "high"},
			setup: func(records *mocks.MockRecordPort) {
				due := fixedNow.Add(48 * time.Hour)
				records.On("CreateTask", mock.Anything, protocol.TaskRequest{
					Title:       "Call Ada",
					EntityID:    "c-1",
					Priority:    "high",
					DueDate:     &due,
					WorkflowID:  "wf-1",
					ExecutionID: "exec-1",
				}).Return(map[string]any{"task_id": "t-1"}, nil)
			},
		},
		{
			name:   "update client status",
			config: &models.UpdateClientStatusConfig{ClientID: "{{client.id}}", Status: "active"},
			setup: func(records *mocks.MockRecordPort) {
				records.On("UpdateStatus", mock.Anything, "c-1", "active").Return(map[string]any{}, nil)
			},
		},
		{
			name:   "assign to user",
			config: &models.AssignToUserConfig{EntityID: "{{client.id}}", UserID: "u-7"},
			setup: func(records *mocks.MockRecordPort) {
				records.On("AssignUser", mock.Anything, "c-1", "u-7").Return(map[string]any{}, nil)
			},
		},
		{
			name:   "add note",
			config: &models.AddNoteConfig{EntityID: "{{client.id}}", Note: "Created by {{execution.triggered_by}}"},
			setup: func(records *mocks.MockRecordPort) {
				records.On("AddNote", mock.Anything, "c-1", "Created by user-1").Return(map[string]any{}, nil)
			},
		},
		{
			name:   "update field keeps numeric value",
			config: &models.UpdateClientFieldConfig{ClientID: "{{client.id}}", Field: "score", Value: float64(9)},
			setup: func(records *mocks.MockRecordPort) {
				records.On("UpdateField", mock.Anything, "c-1", "score", float64(9)).Return(map[string]any{}, nil)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			executor, ports := newTestExecutor(t)
			tc.setup(ports.records)

			step := executor.Execute(context.Background(), models.NewAction("a1", 1, tc.config), newExecCtx())

			assert.Equal(t, models.StepStatusCompleted, step.Status, step.Error)
		})
	}
}

func TestExecutor_SendNotification(t *testing.T) {
	executor, ports := newTestExecutor(t)

	ports.notifications.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.ID != "" &&
			n.UserID == "u-1" &&
			n.Title == "New client Ada" &&
			n.Type == models.NotificationInfo &&
			n.WorkflowID == "wf-1" &&
			n.ExecutionID == "exec-1" &&
			n.CreatedAt.Equal(fixedNow)
	})).Return(nil)

	step := executor.Execute(context.Background(), models.NewAction("a1", 1, &models.SendNotificationConfig{
		UserID: "u-1",
		Title:  "New client {{client.name}}",
	}), newExecCtx())

	require.Equal(t, models.StepStatusCompleted, step.Status)
	assert.NotEmpty(t, step.Result["notification_id"])
}

func TestExecutor_WaitDelay(t *testing.T) {
	executor, _ := newTestExecutor(t)

	step := executor.Execute(context.Background(), models.NewAction("w1", 1, &models.WaitDelayConfig{DelayHours: 1, DelayMinutes: 30}), newExecCtx())

	require.Equal(t, models.StepStatusCompleted, step.Status)
	require.NotNil(t, step.ResumeAt)
	assert.Equal(t, fixedNow.Add(90*time.Minute), *step.ResumeAt)
	assert.Equal(t, int64(90*60*1000), step.Result["delay_ms"])
}

func TestExecutor_WaitDelay_RejectsZero(t *testing.T) {
	executor, _ := newTestExecutor(t)

	step := executor.Execute(context.Background(), models.NewAction("w1", 1, &models.WaitDelayConfig{}), newExecCtx())

	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Equal(t, ErrInvalidDelay.Error(), step.Error)
	assert.Nil(t, step.ResumeAt)
}

func TestExecutor_WaitDelay_Simulated(t *testing.T) {
	executor, _ := newTestExecutor(t, WithSimulatedDelays())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step := executor.Execute(ctx, models.NewAction("w1", 1, &models.WaitDelayConfig{DelayMinutes: 1}), newExecCtx())

	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Equal(t, context.Canceled.Error(), step.Error)
	assert.Nil(t, step.ResumeAt)
}

func TestExecutor_ConditionalBranch_TrueBranch(t *testing.T) {
	executor, ports := newTestExecutor(t)

	ports.communication.On("SendSMS", mock.Anything, "+15550100", "hi Ada").Return(map[string]any{"sid": "s-1"}, nil)
	ports.records.On("AddNote", mock.Anything, "c-1", "sms s-1").Return(map[string]any{}, nil)

	branch := models.NewAction("b1", 1, &models.ConditionalBranchConfig{
		Conditions: []models.WorkflowCondition{{Field: "client.status", Operator: models.OperatorEquals, Value: "lead"}},
		TrueBranchActions: []models.WorkflowAction{
			models.NewAction("t2", 2, &models.AddNoteConfig{EntityID: "{{client.id}}", Note: "sms {{steps.t1.sid}}"}),
			models.NewAction("t1", 1, &models.SendSMSConfig{To: "{{client.phone}}", Body: "hi {{client.name}}"}),
		},
		FalseBranchActions: []models.WorkflowAction{
			models.NewAction("f1", 1, &models.SendEmailConfig{To: "x", Subject: "never"}),
		},
	})

	step := executor.Execute(context.Background(), branch, newExecCtx())

	require.Equal(t, models.StepStatusCompleted, step.Status, step.Error)
	assert.Equal(t, true, step.Result["condition_result"])
	assert.Equal(t, "true", step.Result["branch"])

	subSteps := step.SubSteps()
	require.Len(t, subSteps, 2)
	assert.Equal(t, "t1", subSteps[0].ActionID)
	assert.Equal(t, "t2", subSteps[1].ActionID)
	ports.communication.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutor_ConditionalBranch_FailingSubStep(t *testing.T) {
	executor, ports := newTestExecutor(t)

	ports.records.On("AddNote", mock.Anything, "c-1", "first").Return(nil, errors.New("record locked"))

	branch := models.NewAction("b1", 1, &models.ConditionalBranchConfig{
		Conditions: []models.WorkflowCondition{{Field: "client.status", Operator: models.OperatorEquals, Value: "customer"}},
		FalseBranchActions: []models.WorkflowAction{
			models.NewAction("f1", 1, &models.AddNoteConfig{EntityID: "c-1", Note: "first"}),
			models.NewAction("f2", 2, &models.AddNoteConfig{EntityID: "c-1", Note: "second"}),
		},
	})

	step := executor.Execute(context.Background(), branch, newExecCtx())

	require.Equal(t, models.StepStatusFailed, step.Status)
	assert.Equal(t, "branch action f1 failed: record locked", step.Error)
	assert.Equal(t, "false", step.Result["branch"])

	subSteps := step.SubSteps()
	require.Len(t, subSteps, 1)
	assert.Equal(t, models.StepStatusFailed, subSteps[0].Status)
}

func TestExecutor_ConditionalBranch_WaitNotSupported(t *testing.T) {
	executor, _ := newTestExecutor(t)

	branch := models.NewAction("b1", 1, &models.ConditionalBranchConfig{
		Conditions:        []models.WorkflowCondition{{Field: "client.id", Operator: models.OperatorIsNotEmpty}},
		TrueBranchActions: []models.WorkflowAction{models.NewAction("w1", 1, &models.WaitDelayConfig{DelayMinutes: 5})},
	})

	step := executor.Execute(context.Background(), branch, newExecCtx())

	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Contains(t, step.Error, "wait_delay is not supported")
}

func TestExecutor_SendWebhook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/clients/c-1" {
			w.WriteHeader(http.StatusAccepted)

			return
		}

		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	executor := NewExecutor(slog.Default(), Ports{Webhooks: webhook.NewClient(slog.Default(), time.Second)})

	ok := executor.Execute(context.Background(), models.NewAction("h1", 1, &models.SendWebhookConfig{
		URL:  server.URL + "/clients/{{client.id}}",
		Body: map[string]any{"name": "{{client.name}}"},
	}), newExecCtx())

	require.Equal(t, models.StepStatusCompleted, ok.Status, ok.Error)
	assert.Equal(t, http.StatusAccepted, ok.Result["status_code"])

	failed := executor.Execute(context.Background(), models.NewAction("h2", 2, &models.SendWebhookConfig{
		URL: server.URL + "/other",
	}), newExecCtx())

	require.Equal(t, models.StepStatusFailed, failed.Status)
	assert.Equal(t, "HTTP 500: boom", failed.Error)
	assert.Equal(t, http.StatusInternalServerError, failed.Result["status_code"])
}

func TestExecutor_TimeoutFailsStep(t *testing.T) {
	executor, ports := newTestExecutor(t, WithTimeout(20*time.Millisecond))

	ports.webhooks.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	step := executor.Execute(context.Background(), models.NewAction("h1", 1, &models.SendWebhookConfig{URL: "http://example.invalid"}), newExecCtx())

	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Equal(t, "action timed out after 20ms", step.Error)
}

func TestExecutor_TypeMismatch(t *testing.T) {
	executor, _ := newTestExecutor(t)

	action := models.WorkflowAction{ID: "a1", Type: models.ActionSendSMS, Config: &models.AddNoteConfig{}}
	step := executor.Execute(context.Background(), action, newExecCtx())

	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Contains(t, step.Error, "declares type send_sms")
}
