// Package noop provides the executor that stands in for every action during dry runs.
package noop

import (
	"context"

	"github.com/dukex/ruleflow/pkg/protocol"
)

// Executor performs no side effect and reports what would have run.
type Executor struct{}

// NewExecutor creates a no-op executor.
func NewExecutor() *Executor {
	return &Executor{}
}

func (*Executor) Execute(ctx context.Context, config map[string]any, actionCtx protocol.ActionContext) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recipients := make([]string, 0, len(actionCtx.Recipients))
	for _, identity := range actionCtx.Recipients {
		recipients = append(recipients, identity.ID)
	}

	if actionCtx.Logger != nil {
		actionCtx.Logger.DebugContext(ctx, "Dry run action", "action_id", actionCtx.ActionID, "action_type", actionCtx.ActionType)
	}

	return map[string]any{
		"dry_run":     true,
		"action_type": actionCtx.ActionType,
		"recipients":  recipients,
		"config":      config,
	}, nil
}
