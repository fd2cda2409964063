// Package outbox implements the engine's outbound ports by publishing command
// events. The subsystems owning records and channels consume them from the
// command topic.
package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/trellis/pkg/eventbus"
	"github.com/dukex/trellis/pkg/events"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/protocol"
)

var (
	_ protocol.NotificationPort  = (*Outbox)(nil)
	_ protocol.CommunicationPort = (*Outbox)(nil)
	_ protocol.RecordPort        = (*Outbox)(nil)
)

type Outbox struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func New(logger *slog.Logger, publisher eventbus.EventPublisher) *Outbox {
	return &Outbox{
		publisher: publisher,
		logger:    logger.With("module", "outbox"),
	}
}

// publish sends command keyed by key and reports the queued command as the
// action result.
func (o *Outbox) publish(ctx context.Context, key string, base events.BaseEvent, command eventbus.Event) (map[string]any, error) {
	if err := o.publisher.Publish(ctx, key, command); err != nil {
		return nil, fmt.Errorf("failed to publish %s: %w", command.GetType(), err)
	}

	o.logger.DebugContext(ctx, "command published", "command", command.GetType(), "command_id", base.ID, "key", key)

	return map[string]any{
		"command_id": base.ID,
		"command":    string(command.GetType()),
		"queued":     true,
	}, nil
}

func (o *Outbox) Create(ctx context.Context, notification models.Notification) error {
	base := events.NewBaseEvent(events.CreateNotificationCommand, notification.WorkflowID)

	_, err := o.publish(ctx, notification.UserID, base, events.CreateNotification{
		BaseEvent:    base,
		Notification: notification,
	})

	return err
}

func (o *Outbox) SendEmail(ctx context.Context, to, subject, body string) (map[string]any, error) {
	base := events.NewBaseEvent(events.SendEmailCommand, "")

	return o.publish(ctx, to, base, events.SendEmail{BaseEvent: base, To: to, Subject: subject, Body: body})
}

func (o *Outbox) SendSMS(ctx context.Context, to, body string) (map[string]any, error) {
	base := events.NewBaseEvent(events.SendSMSCommand, "")

	return o.publish(ctx, to, base, events.SendSMS{BaseEvent: base, To: to, Body: body})
}

func (o *Outbox) CreateTask(ctx context.Context, task protocol.TaskRequest) (map[string]any, error) {
	base := events.NewBaseEvent(events.CreateTaskCommand, task.WorkflowID)

	return o.publish(ctx, task.EntityID, base, events.CreateTask{
		BaseEvent:   base,
		Title:       task.Title,
		Description: task.Description,
		AssigneeID:  task.AssigneeID,
		EntityID:    task.EntityID,
		Priority:    task.Priority,
		DueDate:     task.DueDate,
		ExecutionID: task.ExecutionID,
	})
}

func (o *Outbox) UpdateStatus(ctx context.Context, entityID, status string) (map[string]any, error) {
	base := events.NewBaseEvent(events.UpdateStatusCommand, "")

	return o.publish(ctx, entityID, base, events.UpdateStatus{BaseEvent: base, EntityID: entityID, Status: status})
}

func (o *Outbox) AssignUser(ctx context.Context, entityID, userID string) (map[string]any, error) {
	base := events.NewBaseEvent(events.AssignUserCommand, "")

	return o.publish(ctx, entityID, base, events.AssignUser{BaseEvent: base, EntityID: entityID, UserID: userID})
}

func (o *Outbox) AddNote(ctx context.Context, entityID, note string) (map[string]any, error) {
	base := events.NewBaseEvent(events.AddNoteCommand, "")

	return o.publish(ctx, entityID, base, events.AddNote{BaseEvent: base, EntityID: entityID, Note: note})
}

func (o *Outbox) UpdateField(ctx context.Context, entityID, field string, value any) (map[string]any, error) {
	base := events.NewBaseEvent(events.UpdateFieldCommand, "")

	return o.publish(ctx, entityID, base, events.UpdateField{BaseEvent: base, EntityID: entityID, Field: field, Value: value})
}
