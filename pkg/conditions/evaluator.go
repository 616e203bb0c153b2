// Package conditions evaluates condition trees against entity data, producing
// a boolean and a trace of every node that was evaluated.
package conditions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
)

// Lookup resolves a condition type to its evaluator.
type Lookup interface {
	ConditionEvaluator(typeName string) (protocol.ConditionEvaluator, error)
}

// Evaluator walks condition trees depth-first. Composite nodes are handled
// here; every other node type is dispatched through the registry.
type Evaluator struct {
	lookup Lookup
	logger *slog.Logger
}

// NewEvaluator creates a condition tree evaluator.
func NewEvaluator(lookup Lookup, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		lookup: lookup,
		logger: logger.With("module", "condition_evaluator"),
	}
}

// EvaluateAll AND-s the top-level conditions of a workflow with short-circuit.
// The trace only holds the conditions that were evaluated.
func (e *Evaluator) EvaluateAll(ctx context.Context, conditions []models.Condition, data map[string]any, now time.Time) (bool, []models.TraceNode) {
	trace := make([]models.TraceNode, 0, len(conditions))

	for _, cond := range conditions {
		result, node := e.Evaluate(ctx, cond, data, now)
		trace = append(trace, node)

		if !result {
			return false, trace
		}
	}

	return true, trace
}

// Evaluate evaluates one condition tree. It never returns an error: failures
// evaluate to false and are annotated on the trace node.
func (e *Evaluator) Evaluate(ctx context.Context, cond models.Condition, data map[string]any, now time.Time) (bool, models.TraceNode) {
	if cond.Type == models.ConditionTypeComposite {
		return e.evaluateComposite(ctx, cond, data, now)
	}

	node := models.TraceNode{Type: cond.Type, Inputs: traceInputs(cond, data, now)}

	evaluator, err := e.lookup.ConditionEvaluator(string(cond.Type))
	if err != nil {
		node.Error = err.Error()

		return false, node
	}

	result, err := e.invoke(ctx, evaluator, protocol.ConditionInput{Condition: cond, EntityData: data, Now: now})
	if err != nil {
		e.logger.DebugContext(ctx, "Condition evaluated to false on error", "type", cond.Type, "error", err)
		node.Error = err.Error()
		result = false
	}

	node.Result = result

	return result, node
}

func (e *Evaluator) evaluateComposite(ctx context.Context, cond models.Condition, data map[string]any, now time.Time) (bool, models.TraceNode) {
	node := models.TraceNode{
		Type:   models.ConditionTypeComposite,
		Inputs: map[string]any{"operator": cond.Operator, "children": len(cond.Children)},
	}

	switch cond.Operator {
	case models.OperatorAnd:
		node.Result = true

		for _, child := range cond.Children {
			result, childNode := e.Evaluate(ctx, child, data, now)
			node.Children = append(node.Children, childNode)

			if !result {
				node.Result = false

				break
			}
		}
	case models.OperatorOr:
		for _, child := range cond.Children {
			result, childNode := e.Evaluate(ctx, child, data, now)
			node.Children = append(node.Children, childNode)

			if result {
				node.Result = true

				break
			}
		}
	case models.OperatorNot:
		if len(cond.Children) != 1 {
			node.Error = fmt.Sprintf("%v: not requires exactly one child, got %d", models.ErrConditionEvaluation, len(cond.Children))

			return false, node
		}

		result, childNode := e.Evaluate(ctx, cond.Children[0], data, now)
		node.Children = append(node.Children, childNode)
		node.Result = !result
	default:
		node.Error = fmt.Sprintf("%v: unknown composite operator %q", models.ErrConditionEvaluation, cond.Operator)
	}

	return node.Result, node
}

func (e *Evaluator) invoke(ctx context.Context, evaluator protocol.ConditionEvaluator, input protocol.ConditionInput) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = fmt.Errorf("%w: evaluator panicked: %v", models.ErrConditionEvaluation, r)
		}
	}()

	return evaluator.Evaluate(ctx, input)
}

func traceInputs(cond models.Condition, data map[string]any, now time.Time) map[string]any {
	switch cond.Type {
	case models.ConditionTypeField:
		inputs := map[string]any{"field": cond.Field, "operator": cond.Operator, "value": cond.Value}
		if actual, ok := LookupField(data, cond.Field); ok {
			inputs["actual"] = actual
		}

		return inputs
	case models.ConditionTypeTime:
		return map[string]any{"pattern": cond.Pattern, "params": cond.Params, "now": now}
	case models.ConditionTypeRole:
		inputs := map[string]any{"check": cond.Check, "roles": cond.Roles, "user_field": cond.UserField}
		if user, ok := LookupField(data, cond.UserField); ok {
			inputs["user"] = user
		}

		return inputs
	case models.ConditionTypeQueryMatch:
		return map[string]any{"query_id": cond.QueryID}
	default:
		return map[string]any{"config": cond.Config}
	}
}
