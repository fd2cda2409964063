//go:build integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/trellis/pkg/actions"
	"github.com/dukex/trellis/pkg/mocks"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence/postgresql"
	"github.com/dukex/trellis/pkg/services"
	"github.com/dukex/trellis/pkg/web"
	"github.com/dukex/trellis/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupTestDB(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("trellis_web"),
		postgres.WithUsername("trellis"),
		postgres.WithPassword("trellis"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return dbURL
}

func setupIntegrationApp(t *testing.T, dbURL string, notifications *mocks.MockNotificationPort) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := postgresql.NewPersistence(context.Background(), logger, dbURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	executor := actions.NewExecutor(logger, actions.Ports{Notifications: notifications})
	engine := workflow.NewEngine(logger, store, executor)

	handlers := web.NewAPIHandlers(
		logger,
		services.NewWorkflow(logger, store, nil),
		services.NewExecution(logger, store, nil, nil),
		workflow.NewDispatcher(logger, store.WorkflowRepository(), engine),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	web.RegisterRoutes(app, handlers)

	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func TestWorkflowDispatch_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	notifications := &mocks.MockNotificationPort{}
	notifications.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.UserID == "owner-7" && n.Title == "New message from Ada"
	})).Return(nil).Once()

	app := setupIntegrationApp(t, setupTestDB(t), notifications)

	resp := postJSON(t, app, "/workflows", map[string]any{
		"name":    "Message alert",
		"trigger": map[string]any{"type": "message_sent"},
		"actions": []any{
			map[string]any{
				"id":   "notify",
				"type": "send_notification",
				"config": map[string]any{
					"user_id": "{{owner_id}}",
					"title":   "New message from {{sender.name}}",
					"message": "{{message.body}}",
				},
			},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, app, "/events", web.DispatchEventRequest{
		TriggerType: models.TriggerMessageSent,
		Payload: map[string]any{
			"owner_id": "owner-7",
			"sender":   map[string]any{"name": "Ada"},
			"message":  map[string]any{"body": "hello"},
		},
		TriggeredBy: "integration",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response web.DispatchEventResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	_ = resp.Body.Close()

	require.Equal(t, 1, response.Count)
	assert.Equal(t, models.ExecutionStatusCompleted, response.Executions[0].Status)
	notifications.AssertExpectations(t)

	req := httptest.NewRequest(http.MethodGet, "/executions?workflow_id="+response.Executions[0].WorkflowID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	var executions []models.WorkflowExecution
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&executions))
	_ = resp.Body.Close()

	require.Len(t, executions, 1)
	assert.Equal(t, response.Executions[0].ID, executions[0].ID)
}
