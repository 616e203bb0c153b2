// Package events defines the messages exchanged over the event bus: inbound
// entity changes and outbound execution and notification events.
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topics.
const (
	EntityTopic       = "ruleflow.entities"
	ExecutionTopic    = "ruleflow.executions"
	NotificationTopic = "ruleflow.notifications"
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	EntityChangedEvent         EventType = "entity.changed"
	ExecutionCompletedEvent    EventType = "execution.completed"
	NotificationRequestedEvent EventType = "notification.requested"
)

// ErrInvalidEventData is returned when an inbound event is missing required data.
var ErrInvalidEventData = errors.New("invalid event data")

// TopicFor returns the topic an event type is carried on.
func TopicFor(eventType EventType) string {
	switch eventType {
	case EntityChangedEvent:
		return EntityTopic
	case ExecutionCompletedEvent:
		return ExecutionTopic
	case NotificationRequestedEvent:
		return NotificationTopic
	default:
		return ""
	}
}

// New returns an empty value to decode a payload of eventType into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case EntityChangedEvent:
		return &EntityChanged{}, true
	case ExecutionCompletedEvent:
		return &ExecutionCompleted{}, true
	case NotificationRequestedEvent:
		return &NotificationRequested{}, true
	default:
		return nil, false
	}
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func newBase(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// EntityChanged carries an entity lifecycle change into the engine.
type EntityChanged struct {
	BaseEvent

	Event models.Event `json:"event"`
}

func NewEntityChanged(event models.Event) *EntityChanged {
	return &EntityChanged{BaseEvent: newBase(EntityChangedEvent, event.WorkflowID), Event: event}
}

func (e EntityChanged) GetType() EventType {
	return EntityChangedEvent
}

// Validate checks the fields every inbound change must carry.
func (e *EntityChanged) Validate() error {
	if e.Event.EntityType == "" {
		return errors.Join(ErrInvalidEventData, errors.New("entity_type is required"))
	}

	switch e.Event.Operation {
	case models.OperationCreate, models.OperationUpdate, models.OperationDelete, models.OperationSchedule:
	default:
		return errors.Join(ErrInvalidEventData, errors.New("operation must be create, update, delete or schedule"))
	}

	return nil
}

// DecodeEvent parses a bare JSON encoded models.Event, as written by external
// producers to queues and topics, and validates it.
func DecodeEvent(raw []byte) (models.Event, error) {
	var event models.Event

	if err := json.Unmarshal(raw, &event); err != nil {
		return event, errors.Join(ErrInvalidEventData, err)
	}

	if err := NewEntityChanged(event).Validate(); err != nil {
		return event, err
	}

	return event, nil
}

// ExecutionCompleted announces a finalized execution record, including
// records updated by a retry.
type ExecutionCompleted struct {
	BaseEvent

	Record *models.ExecutionRecord `json:"record"`
}

func NewExecutionCompleted(record *models.ExecutionRecord) *ExecutionCompleted {
	return &ExecutionCompleted{BaseEvent: newBase(ExecutionCompletedEvent, record.WorkflowID), Record: record}
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// NotificationRequested asks the notification transport to deliver one
// rendered message to one recipient.
type NotificationRequested struct {
	BaseEvent

	ExecutionID    string          `json:"execution_id"`
	ActionID       string          `json:"action_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Recipient      models.Identity `json:"recipient"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	Priority       string          `json:"priority,omitempty"`
}

func NewNotificationRequested(workflowID string) *NotificationRequested {
	return &NotificationRequested{BaseEvent: newBase(NotificationRequestedEvent, workflowID)}
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}
