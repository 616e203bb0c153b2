package log_action

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/ruleflow/pkg/actions"
	rflog "github.com/dukex/ruleflow/pkg/log"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/dukex/ruleflow/pkg/template"
)

const defaultMessage = "Workflow action triggered"

type LogAction struct {
}

func NewLogAction() *LogAction {
	return &LogAction{}
}

func (*LogAction) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"level":   map[string]any{"type": "string", "enum": []string{"debug", "info", "warn", "error"}},
		},
		"additionalProperties": false,
	}
}

func (a *LogAction) ValidateConfig(config map[string]any) error {
	if err := actions.ValidateSchema(a.Schema(), config); err != nil {
		return err
	}

	message, _ := config["message"].(string)
	if _, err := template.Parse(message); err != nil {
		return fmt.Errorf("%w: %w", actions.ErrInvalidConfig, err)
	}

	return nil
}

func (a *LogAction) Execute(ctx context.Context, config map[string]any, actionCtx protocol.ActionContext) (any, error) {
	logger := actions.Logger(actionCtx, "log_action")

	message, _ := config["message"].(string)
	if message == "" {
		message = defaultMessage
	}

	message, err := template.RenderString(message, template.ContextData(actionCtx, nil))
	if err != nil {
		return nil, actions.Failed("render log message: %v", err)
	}

	name, _ := config["level"].(string)
	level := rflog.ParseLevel(name)

	logger.Log(ctx, level, message,
		"execution_id", actionCtx.ExecutionID,
		"workflow_id", actionCtx.WorkflowID,
		"entity_type", actionCtx.EntityType,
		"entity_id", actionCtx.EntityID,
		"operation", actionCtx.Operation,
	)

	return map[string]any{"message": message, "level": strings.ToLower(level.String())}, nil
}
