// Package protocol defines the ports the engine consumes to reach the rest of
// the application.
package protocol

import (
	"context"
	"time"

	"github.com/dukex/trellis/pkg/models"
)

// NotificationPort stores in-app notifications.
type NotificationPort interface {
	Create(ctx context.Context, notification models.Notification) error
}

// CommunicationPort delivers outbound messages.
type CommunicationPort interface {
	SendEmail(ctx context.Context, to, subject, body string) (map[string]any, error)
	SendSMS(ctx context.Context, to, body string) (map[string]any, error)
}

// TaskRequest is the structured request behind a create_task action.
type TaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	EntityID    string     `json:"entity_id,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	WorkflowID  string     `json:"workflow_id"`
	ExecutionID string     `json:"execution_id"`
}

// RecordPort mutates business records owned by other subsystems.
type RecordPort interface {
	CreateTask(ctx context.Context, task TaskRequest) (map[string]any, error)
	UpdateStatus(ctx context.Context, entityID, status string) (map[string]any, error)
	AssignUser(ctx context.Context, entityID, userID string) (map[string]any, error)
	AddNote(ctx context.Context, entityID, note string) (map[string]any, error)
	UpdateField(ctx context.Context, entityID, field string, value any) (map[string]any, error)
}

// WebhookRequest is an outbound HTTP call issued by send_webhook.
type WebhookRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

// WebhookResponse is what the remote endpoint answered.
type WebhookResponse struct {
	StatusCode int
	Body       any
}

// WebhookClient issues webhook calls. A non-2xx answer is returned as an
// error together with the response.
type WebhookClient interface {
	Send(ctx context.Context, request WebhookRequest) (*WebhookResponse, error)
}

// Scheduler persists deferred work: resumption of executions suspended by
// wait_delay and cron registrations of scheduled_time workflows.
type Scheduler interface {
	ScheduleResume(ctx context.Context, executionID string, resumeAt time.Time) error
	CancelResume(ctx context.Context, executionID string) error
	RegisterCron(ctx context.Context, workflowID, cronExpression string) error
	UnregisterCron(ctx context.Context, workflowID string) error
}
