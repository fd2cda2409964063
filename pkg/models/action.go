package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ActionType is the discriminator of a WorkflowAction.
type ActionType string

const (
	ActionSendEmail          ActionType = "send_email"
	ActionSendSMS            ActionType = "send_sms"
	ActionCreateTask         ActionType = "create_task"
	ActionUpdateClientStatus ActionType = "update_client_status"
	ActionAssignToUser       ActionType = "assign_to_user"
	ActionAddNote            ActionType = "add_note"
	ActionSendNotification   ActionType = "send_notification"
	ActionUpdateClientField  ActionType = "update_client_field"
	ActionWaitDelay          ActionType = "wait_delay"
	ActionConditionalBranch  ActionType = "conditional_branch"
	ActionSendWebhook        ActionType = "send_webhook"
)

// ErrUnknownActionType is returned when decoding an action whose type has no config variant.
var ErrUnknownActionType = errors.New("unknown action type")

// ActionConfig is the kind-specific payload of a WorkflowAction. Every
// implementation is a pointer to one of the *Config structs in this package.
type ActionConfig interface {
	ActionType() ActionType

	// Interpolate returns a copy of the config where every string field is
	// rewritten by str and every free-form value by val.
	Interpolate(str func(string) string, val func(any) any) ActionConfig
}

// WorkflowAction is one unit of effect within a workflow.
type WorkflowAction struct {
	ID     string       `json:"id"     validate:"required"`
	Type   ActionType   `json:"type"   validate:"required"`
	Order  int          `json:"order"`
	Config ActionConfig `json:"config" validate:"required"`
}

// NewAction builds an action whose type matches its config.
func NewAction(id string, order int, config ActionConfig) WorkflowAction {
	return WorkflowAction{
		ID:     id,
		Type:   config.ActionType(),
		Order:  order,
		Config: config,
	}
}

// UnmarshalJSON decodes config into the variant selected by type.
func (a *WorkflowAction) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     string          `json:"id"`
		Type   ActionType      `json:"type"`
		Order  int             `json:"order"`
		Config json.RawMessage `json:"config"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	config, err := DecodeActionConfig(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("action %s: %w", raw.ID, err)
	}

	a.ID = raw.ID
	a.Type = raw.Type
	a.Order = raw.Order
	a.Config = config

	return nil
}

// DecodeActionConfig decodes a raw config document for the given action type.
func DecodeActionConfig(actionType ActionType, data json.RawMessage) (ActionConfig, error) {
	var config ActionConfig

	switch actionType {
	case ActionSendEmail:
		config = &SendEmailConfig{}
	case ActionSendSMS:
		config = &SendSMSConfig{}
	case ActionCreateTask:
		config = &CreateTaskConfig{}
	case ActionUpdateClientStatus:
		config = &UpdateClientStatusConfig{}
	case ActionAssignToUser:
		config = &AssignToUserConfig{}
	case ActionAddNote:
		config = &AddNoteConfig{}
	case ActionSendNotification:
		config = &SendNotificationConfig{}
	case ActionUpdateClientField:
		config = &UpdateClientFieldConfig{}
	case ActionWaitDelay:
		config = &WaitDelayConfig{}
	case ActionConditionalBranch:
		config = &ConditionalBranchConfig{}
	case ActionSendWebhook:
		config = &SendWebhookConfig{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}

	if len(data) == 0 || string(data) == "null" {
		return config, nil
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", actionType, err)
	}

	return config, nil
}

type SendEmailConfig struct {
	To      string `json:"to"      validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body"`
}

func (c *SendEmailConfig) ActionType() ActionType { return ActionSendEmail }

func (c *SendEmailConfig) Interpolate(str func(string) string, _ func(any) any) ActionConfig {
	return &SendEmailConfig{To: str(c.To), Subject: str(c.Subject), Body: str(c.Body)}
}

type SendSMSConfig struct {
	To   string `json:"to"   validate:"required"`
	Body string `json:"body" validate:"required"`
}

func (c *SendSMSConfig) ActionType() ActionType { return ActionSendSMS }

func (c *SendSMSConfig) Interpolate(str func(string) string, _ func(any) any) ActionConfig {
	return &SendSMSConfig{To: str(c.To), Body: str(c.Body)}
}

type CreateTaskConfig struct {
	Title       string `json:"title"                 validate:"required"`
	Description string `json:"description,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
	Priority    string `json:"priority,omitempty"    validate:"omitempty,oneof=low medium high urgent"`
	DueInDays   int    `json:"due_in_days,omitempty" validate:"gte=0"`
}

func (c *CreateTaskConfig) ActionType() ActionType { return ActionCreateTask }

func (c *CreateTaskConfig) Interpolate(str func(string) string, _ func(any) any) ActionConfig {
	out := *c
	out.Title = str(c.Title)
	out.Description = str(c.Description)
	out.AssigneeID = str(c.AssigneeID)
	out.EntityID = str(c.EntityID)

	return &out
}

type UpdateClientStatusConfig struct {
	ClientID string `json:"client_id" validate:"required"`
	Status   string `json:"status"    validate:"required"`
}

func (c *UpdateClientStatusConfig) ActionType() ActionType { return ActionUpdateClientStatus }

func (c *UpdateClientStatusConfig) Interpolate(str func(string) string, _ func(any) any) ActionConfig {
	return &UpdateClientStatusConfig{ClientID: str(c.ClientID), Status: str(c.Status)}
}

type AssignToUserConfig struct {
	EntityID string `json:"entity_id" validate:"required"`
	UserID   string `json:"user_id"   validate:"required"`
}

func (c *AssignToUserConfig) ActionType() ActionType { return ActionAssignToUser }

func (c *AssignToUserConfig) Interpolate(str func(string) string, _ func(any) any) ActionConfig {
	return &AssignToUserConfig{EntityID: str(c.EntityID), UserID: str(c.UserID)}
}

type AddNoteConfig struct {
	EntityID string `json:"entity_id" validate:"required"`
	Note     string `json:"note"      validate:"required"`
}

func (c *AddNoteConfig) ActionType() ActionType { return ActionAddNote }

func (c *AddNoteConfig) Interpolate(str func(string) string, _ func(any) any) ActionConfig {
	return &AddNoteConfig{EntityID: str(c.EntityID), Note: str(c.Note)}
}

type SendNotificationConfig struct {
	UserID  string           `json:"user_id" validate:"required"`
	Title   string           `json:"title"   validate:"required"`
	Message string           `json:"message"`
	Type    NotificationType `json:"type,omitempty" validate:"omitempty,oneof=info success warning error"`
	Link    string           `json:"link,omitempty"`
}

func (c *SendNotificationConfig) ActionType() ActionType { return ActionSendNotification }

func (c *SendNotificationConfig) Interpolate(str func(string) string, _ func(any) any) ActionConfig {
	return &SendNotificationConfig{
		UserID:  str(c.UserID),
		Title:   str(c.Title),
		Message: str(c.Message),
		Type:    c.Type,
		Link:    str(c.Link),
	}
}

type UpdateClientFieldConfig struct {
	ClientID string `json:"client_id" validate:"required"`
	Field    string `json:"field"     validate:"required"`
	Value    any    `json:"value"`
}

func (c *UpdateClientFieldConfig) ActionType() ActionType { return ActionUpdateClientField }

func (c *UpdateClientFieldConfig) Interpolate(str func(string) string, val func(any) any) ActionConfig {
	return &UpdateClientFieldConfig{ClientID: str(c.ClientID), Field: str(c.Field), Value: val(c.Value)}
}

type WaitDelayConfig struct {
	DelayMinutes int `json:"delay_minutes,omitempty" validate:"gte=0"`
	DelayHours   int `json:"delay_hours,omitempty"   validate:"gte=0"`
	DelayDays    int `json:"delay_days,omitempty"    validate:"gte=0"`
}

func (c *WaitDelayConfig) ActionType() ActionType { return ActionWaitDelay }

func (c *WaitDelayConfig) Interpolate(_ func(string) string, _ func(any) any) ActionConfig {
	out := *c

	return &out
}

// Duration is the total wait expressed by the config.
func (c *WaitDelayConfig) Duration() time.Duration {
	return time.Duration(c.DelayMinutes)*time.Minute +
		time.Duration(c.DelayHours)*time.Hour +
		time.Duration(c.DelayDays)*24*time.Hour
}

type ConditionalBranchConfig struct {
	Conditions         []WorkflowCondition `json:"conditions"           validate:"required,min=1,dive"`
	TrueBranchActions  []WorkflowAction    `json:"true_branch_actions"`
	FalseBranchActions []WorkflowAction    `json:"false_branch_actions"`
}

func (c *ConditionalBranchConfig) ActionType() ActionType { return ActionConditionalBranch }

// Interpolate rewrites condition values only. Branch actions are interpolated
// when they execute.
func (c *ConditionalBranchConfig) Interpolate(_ func(string) string, val func(any) any) ActionConfig {
	conditions := make([]WorkflowCondition, len(c.Conditions))
	for i, condition := range c.Conditions {
		condition.Value = val(condition.Value)
		conditions[i] = condition
	}

	return &ConditionalBranchConfig{
		Conditions:         conditions,
		TrueBranchActions:  c.TrueBranchActions,
		FalseBranchActions: c.FalseBranchActions,
	}
}

type SendWebhookConfig struct {
	URL            string            `json:"url"                       validate:"required"`
	Method         string            `json:"method,omitempty"          validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           any               `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" validate:"gte=0,lte=300"`
}

func (c *SendWebhookConfig) ActionType() ActionType { return ActionSendWebhook }

func (c *SendWebhookConfig) Interpolate(str func(string) string, val func(any) any) ActionConfig {
	out := *c
	out.URL = str(c.URL)

	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for key, value := range c.Headers {
			out.Headers[key] = str(value)
		}
	}

	out.Body = val(c.Body)

	return &out
}
