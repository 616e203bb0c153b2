package protocol

import (
	"context"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
)

// ConditionInput is the data a leaf condition is evaluated against.
type ConditionInput struct {
	Condition  models.Condition
	EntityData map[string]any
	Now        time.Time
}

// ConditionEvaluator evaluates one condition type. An error means the
// condition is false; it is recorded on the trace and never aborts evaluation.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, input ConditionInput) (bool, error)
}

// ConditionEvaluatorFunc adapts a function to ConditionEvaluator.
type ConditionEvaluatorFunc func(ctx context.Context, input ConditionInput) (bool, error)

func (f ConditionEvaluatorFunc) Evaluate(ctx context.Context, input ConditionInput) (bool, error) {
	return f(ctx, input)
}
