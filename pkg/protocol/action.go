// Package protocol defines the extension contracts of the rule engine: condition
// evaluators, action executors, recipient resolvers, event sources and the
// external collaborators they delegate to.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/ruleflow/pkg/models"
)

// ActionContext is everything an executor receives besides its config.
type ActionContext struct {
	ExecutionID     string
	WorkflowID      string
	WorkflowVersion int
	ActionID        string
	ActionType      string
	Attempt         int

	// IdempotencyKey is stable across retries of the same action in the same execution.
	IdempotencyKey string

	EntityType string
	EntityID   string
	Operation  models.Operation
	EntityData map[string]any
	Recipients []models.Identity

	DryRun bool
	Logger *slog.Logger
}

// IdempotencyKey derives the key executors use to deduplicate side effects.
func IdempotencyKey(executionID, actionID string) string {
	return executionID + ":" + actionID
}

// ActionExecutor performs one action type. Implementations must honour ctx
// cancellation and must not mutate EntityData.
type ActionExecutor interface {
	Execute(ctx context.Context, config map[string]any, actionCtx ActionContext) (any, error)
}

// ActionExecutorFunc adapts a function to ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, config map[string]any, actionCtx ActionContext) (any, error)

func (f ActionExecutorFunc) Execute(ctx context.Context, config map[string]any, actionCtx ActionContext) (any, error) {
	return f(ctx, config, actionCtx)
}

// ConfigValidator is implemented by executors that can reject a config when a
// definition is loaded rather than when it runs.
type ConfigValidator interface {
	ValidateConfig(config map[string]any) error
}
