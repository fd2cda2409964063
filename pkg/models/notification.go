package models

import "time"

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is an in-app message produced by a send_notification action.
type Notification struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Type        NotificationType `json:"type"`
	Link        string           `json:"link,omitempty"`
	WorkflowID  string           `json:"workflow_id"`
	ExecutionID string           `json:"execution_id"`
	CreatedAt   time.Time        `json:"created_at"`
}
