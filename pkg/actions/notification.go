package actions

import (
	"context"

	"github.com/dukex/trellis/pkg/models"
	"github.com/google/uuid"
)

func (e *Executor) sendNotification(ctx context.Context, config *models.SendNotificationConfig, execCtx *models.ExecutionContext) (map[string]any, error) {
	if e.ports.Notifications == nil {
		return nil, portMissing("notifications")
	}

	notificationType := config.Type
	if notificationType == "" {
		notificationType = models.NotificationInfo
	}

	notification := models.Notification{
		ID:          uuid.NewString(),
		UserID:      config.UserID,
		Title:       config.Title,
		Message:     config.Message,
		Type:        notificationType,
		Link:        config.Link,
		WorkflowID:  execCtx.WorkflowID,
		ExecutionID: execCtx.ExecutionID,
		CreatedAt:   e.now(),
	}

	return e.bounded(ctx, 0, func(ctx context.Context) (map[string]any, error) {
		if err := e.ports.Notifications.Create(ctx, notification); err != nil {
			return nil, err
		}

		return map[string]any{
			"notification_id": notification.ID,
			"user_id":         notification.UserID,
		}, nil
	})
}
