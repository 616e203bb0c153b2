// Package email provides the executor that hands rendered emails to a Mailer.
package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/dukex/ruleflow/pkg/template"
)

// ErrNoMailer is returned when the engine runs without a configured Mailer.
var ErrNoMailer = errors.New("no mailer configured")

type Executor struct {
	mailer protocol.Mailer
}

// NewExecutor creates an email executor. mailer may be nil, in which case
// every email action fails.
func NewExecutor(mailer protocol.Mailer) *Executor {
	return &Executor{mailer: mailer}
}

func (*Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject":  map[string]any{"type": "string"},
			"body":     map[string]any{"type": "string"},
			"template": map[string]any{"type": "string", "description": "Name of a template known to the mailer"},
		},
		"anyOf": []map[string]any{
			{"required": []string{"subject"}},
			{"required": []string{"template"}},
		},
		"additionalProperties": false,
	}
}

func (e *Executor) ValidateConfig(config map[string]any) error {
	if err := actions.ValidateSchema(e.Schema(), config); err != nil {
		return err
	}

	cfg, err := actions.Decode[models.EmailConfig](config)
	if err != nil {
		return err
	}

	for _, tmpl := range []string{cfg.Subject, cfg.Body} {
		if _, err := template.Parse(tmpl); err != nil {
			return fmt.Errorf("%w: %w", actions.ErrInvalidConfig, err)
		}
	}

	return nil
}

func (e *Executor) Execute(ctx context.Context, config map[string]any, actionCtx protocol.ActionContext) (any, error) {
	if e.mailer == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrActionExecution, ErrNoMailer)
	}

	cfg, err := actions.Decode[models.EmailConfig](config)
	if err != nil {
		return nil, err
	}

	to := make([]string, 0, len(actionCtx.Recipients))
	for _, recipient := range actionCtx.Recipients {
		if recipient.Address != "" {
			to = append(to, recipient.Address)
		}
	}

	if len(to) == 0 {
		return nil, actions.Failed("email %s has no recipient addresses", actionCtx.ActionID)
	}

	data := template.ContextData(actionCtx, nil)

	subject, err := template.RenderString(cfg.Subject, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrActionExecution, err)
	}

	body, err := template.RenderString(cfg.Body, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrActionExecution, err)
	}

	message := protocol.EmailMessage{
		To:             to,
		Subject:        subject,
		Body:           body,
		Template:       cfg.Template,
		IdempotencyKey: actionCtx.IdempotencyKey,
	}

	if err := e.mailer.Send(ctx, message); err != nil {
		return nil, fmt.Errorf("%w: send email: %w", models.ErrActionExecution, err)
	}

	actions.Logger(actionCtx, "email_action").InfoContext(ctx, "Email sent", "recipients", len(to))

	return map[string]any{"to": to, "subject": subject}, nil
}
