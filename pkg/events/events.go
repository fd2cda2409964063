// Package events defines the messages exchanged over the event bus: inbound
// domain events, execution lifecycle notifications and outbound commands.
package events

import (
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topics.
const (
	DomainTopic    = "trellis.domain.events" // Inbound events that trigger workflows
	ExecutionTopic = "trellis.executions"    // Execution lifecycle notifications
	CommandTopic   = "trellis.commands"      // Effects requested from owning subsystems
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DomainEventReceived EventType = "domain.event"

	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionWaitingEvent   EventType = "execution.waiting"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
)

// Topic returns the topic events of eventType are published on.
func Topic(eventType EventType) string {
	switch eventType {
	case DomainEventReceived:
		return DomainTopic
	case ExecutionStartedEvent,
		ExecutionWaitingEvent,
		ExecutionResumedEvent,
		ExecutionCompletedEvent,
		ExecutionFailedEvent,
		ExecutionCancelledEvent:
		return ExecutionTopic
	default:
		return CommandTopic
	}
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// DomainEvent is a qualifying occurrence elsewhere in the application, such
// as a client being created. It is dispatched to matching workflows.
type DomainEvent struct {
	BaseEvent

	TriggerType models.TriggerType `json:"trigger_type"`
	Payload     map[string]any     `json:"payload"`
	TriggeredBy string             `json:"triggered_by"`
}

func (e DomainEvent) GetType() EventType {
	return DomainEventReceived
}

func NewDomainEvent(triggerType models.TriggerType, payload map[string]any, triggeredBy string) DomainEvent {
	return DomainEvent{
		BaseEvent:   NewBaseEvent(DomainEventReceived, ""),
		TriggerType: triggerType,
		Payload:     payload,
		TriggeredBy: triggeredBy,
	}
}

// ExecutionEvent reports a lifecycle transition of an execution. Type tells
// which one.
type ExecutionEvent struct {
	BaseEvent

	ExecutionID  string                 `json:"execution_id"`
	WorkflowName string                 `json:"workflow_name"`
	TriggerType  models.TriggerType     `json:"trigger_type"`
	Status       models.ExecutionStatus `json:"status"`
	StepsCount   int                    `json:"steps_count"`
	DurationMs   int64                  `json:"duration_ms"`
	Error        string                 `json:"error,omitempty"`
	ResumeAt     *time.Time             `json:"resume_at,omitempty"`
}

func (e ExecutionEvent) GetType() EventType {
	return e.Type
}

// NewExecutionEvent snapshots execution under eventType.
func NewExecutionEvent(eventType EventType, execution *models.WorkflowExecution, now time.Time) ExecutionEvent {
	return ExecutionEvent{
		BaseEvent:    NewBaseEvent(eventType, execution.WorkflowID),
		ExecutionID:  execution.ID,
		WorkflowName: execution.WorkflowName,
		TriggerType:  execution.TriggerType,
		Status:       execution.Status,
		StepsCount:   len(execution.Steps),
		DurationMs:   now.Sub(execution.StartedAt).Milliseconds(),
		Error:        execution.Error,
		ResumeAt:     execution.ResumeAt,
	}
}
