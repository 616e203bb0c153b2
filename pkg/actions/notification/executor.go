// Package notification provides the executor that requests one notification
// per resolved recipient. Delivery is left to whatever consumes the
// notification topic of the event bus.
package notification

import (
	"context"
	"fmt"

	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/dukex/ruleflow/pkg/template"
)

const defaultPriority = "normal"

type Executor struct {
	publisher eventbus.EventPublisher
}

func NewExecutor(publisher eventbus.EventPublisher) *Executor {
	return &Executor{publisher: publisher}
}

// Schema returns the JSON schema for configuring this action.
func (*Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Notification title. Supports templating, including {{.recipient.id}}.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Notification body. Supports templating.",
			},
			"priority": map[string]any{
				"type":    "string",
				"default": defaultPriority,
				"enum":    []string{"low", "normal", "high", "urgent"},
			},
		},
		"required":             []string{"title"},
		"additionalProperties": false,
	}
}

func (e *Executor) ValidateConfig(config map[string]any) error {
	if err := actions.ValidateSchema(e.Schema(), config); err != nil {
		return err
	}

	cfg, err := actions.Decode[models.NotificationConfig](config)
	if err != nil {
		return err
	}

	for _, tmpl := range []string{cfg.Title, cfg.Body} {
		if _, err := template.Parse(tmpl); err != nil {
			return fmt.Errorf("%w: %w", actions.ErrInvalidConfig, err)
		}
	}

	return nil
}

// Execute publishes a notification.requested event per recipient, keyed by
// execution so a consumer sees an execution's notifications in order.
func (e *Executor) Execute(ctx context.Context, config map[string]any, actionCtx protocol.ActionContext) (any, error) {
	cfg, err := actions.Decode[models.NotificationConfig](config)
	if err != nil {
		return nil, err
	}

	if e.publisher == nil {
		return nil, actions.Failed("no event publisher configured")
	}

	if len(actionCtx.Recipients) == 0 {
		return nil, actions.Failed("notification %s has no recipients", actionCtx.ActionID)
	}

	if cfg.Priority == "" {
		cfg.Priority = defaultPriority
	}

	logger := actions.Logger(actionCtx, "notification_action")
	notified := make([]string, 0, len(actionCtx.Recipients))

	for _, recipient := range actionCtx.Recipients {
		data := template.ContextData(actionCtx, &recipient)

		title, err := template.RenderString(cfg.Title, data)
		if err != nil {
			return notifiedOutput(notified, cfg.Priority), fmt.Errorf("%w: %w", models.ErrActionExecution, err)
		}

		body, err := template.RenderString(cfg.Body, data)
		if err != nil {
			return notifiedOutput(notified, cfg.Priority), fmt.Errorf("%w: %w", models.ErrActionExecution, err)
		}

		event := events.NewNotificationRequested(actionCtx.WorkflowID)
		event.ExecutionID = actionCtx.ExecutionID
		event.ActionID = actionCtx.ActionID
		event.IdempotencyKey = actionCtx.IdempotencyKey + ":" + recipient.ID
		event.Recipient = recipient
		event.Title = title
		event.Body = body
		event.Priority = cfg.Priority

		if err := e.publisher.Publish(ctx, actionCtx.ExecutionID, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish notification", "recipient", recipient.ID, "error", err)

			return notifiedOutput(notified, cfg.Priority), fmt.Errorf("%w: publish notification for %s: %w", models.ErrActionExecution, recipient.ID, err)
		}

		notified = append(notified, recipient.ID)
	}

	logger.InfoContext(ctx, "Notifications requested", "count", len(notified), "priority", cfg.Priority)

	return notifiedOutput(notified, cfg.Priority), nil
}

func notifiedOutput(notified []string, priority string) map[string]any {
	return map[string]any{"notified": notified, "priority": priority}
}
