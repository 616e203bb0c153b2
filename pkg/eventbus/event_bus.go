// Package eventbus carries entity changes into the engine and execution and
// notification events out of it.
package eventbus

import (
	"context"
	"fmt"

	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/models"
)

// Event is anything the bus can route by type.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends an event. Events sharing a key keep their relative
// order on partitioned transports.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler receives the decoded payload of one message. Returning an
// error asks the transport to redeliver it.
type EventHandler func(ctx context.Context, event any) error

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}

// ExecutionPublisher announces finalized execution records on the bus.
type ExecutionPublisher struct {
	publisher EventPublisher
}

func NewExecutionPublisher(publisher EventPublisher) *ExecutionPublisher {
	return &ExecutionPublisher{publisher: publisher}
}

// PublishExecution publishes an execution.completed event keyed by workflow
// id, so consumers see one workflow's executions in completion order.
func (p *ExecutionPublisher) PublishExecution(ctx context.Context, record *models.ExecutionRecord) error {
	if !record.Status.IsTerminal() {
		return fmt.Errorf("execution %s is not final: %s", record.ID, record.Status)
	}

	return p.publisher.Publish(ctx, record.WorkflowID, events.NewExecutionCompleted(record))
}
