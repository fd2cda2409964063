package events

import (
	"time"

	"github.com/dukex/trellis/pkg/models"
)

// Commands ask the subsystem owning a record or channel to perform an effect.
const (
	SendEmailCommand          EventType = "command.send_email"
	SendSMSCommand            EventType = "command.send_sms"
	CreateNotificationCommand EventType = "command.create_notification"
	CreateTaskCommand         EventType = "command.create_task"
	UpdateStatusCommand       EventType = "command.update_status"
	AssignUserCommand         EventType = "command.assign_user"
	AddNoteCommand            EventType = "command.add_note"
	UpdateFieldCommand        EventType = "command.update_field"
)

type SendEmail struct {
	BaseEvent

	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c SendEmail) GetType() EventType { return SendEmailCommand }

type SendSMS struct {
	BaseEvent

	To   string `json:"to"`
	Body string `json:"body"`
}

func (c SendSMS) GetType() EventType { return SendSMSCommand }

type CreateNotification struct {
	BaseEvent

	Notification models.Notification `json:"notification"`
}

func (c CreateNotification) GetType() EventType { return CreateNotificationCommand }

type CreateTask struct {
	BaseEvent

	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	EntityID    string     `json:"entity_id,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ExecutionID string     `json:"execution_id,omitempty"`
}

func (c CreateTask) GetType() EventType { return CreateTaskCommand }

type UpdateStatus struct {
	BaseEvent

	EntityID string `json:"entity_id"`
	Status   string `json:"status"`
}

func (c UpdateStatus) GetType() EventType { return UpdateStatusCommand }

type AssignUser struct {
	BaseEvent

	EntityID string `json:"entity_id"`
	UserID   string `json:"user_id"`
}

func (c AssignUser) GetType() EventType { return AssignUserCommand }

type AddNote struct {
	BaseEvent

	EntityID string `json:"entity_id"`
	Note     string `json:"note"`
}

func (c AddNote) GetType() EventType { return AddNoteCommand }

type UpdateField struct {
	BaseEvent

	EntityID string `json:"entity_id"`
	Field    string `json:"field"`
	Value    any    `json:"value"`
}

func (c UpdateField) GetType() EventType { return UpdateFieldCommand }
