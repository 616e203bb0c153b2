package conditions

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
)

// FieldEvaluator compares an entity field against a literal value.
type FieldEvaluator struct{}

// Evaluate implements protocol.ConditionEvaluator. A missing field fails closed.
func (FieldEvaluator) Evaluate(_ context.Context, input protocol.ConditionInput) (bool, error) {
	cond := input.Condition

	actual, ok := LookupField(input.EntityData, cond.Field)
	if !ok {
		return false, fmt.Errorf("%w: field %q not found", models.ErrConditionEvaluation, cond.Field)
	}

	switch cond.Operator {
	case models.OperatorEq:
		return equal(actual, cond.Value), nil
	case models.OperatorNeq:
		return !equal(actual, cond.Value), nil
	case models.OperatorGt, models.OperatorGte, models.OperatorLt, models.OperatorLte:
		return compareOrdered(cond.Operator, actual, cond.Value)
	case models.OperatorContains:
		if items, ok := asList(actual); ok {
			for _, item := range items {
				if equal(item, cond.Value) {
					return true, nil
				}
			}

			return false, nil
		}

		return strings.Contains(stringify(actual), stringify(cond.Value)), nil
	case models.OperatorStartsWith:
		return strings.HasPrefix(stringify(actual), stringify(cond.Value)), nil
	case models.OperatorEndsWith:
		return strings.HasSuffix(stringify(actual), stringify(cond.Value)), nil
	case models.OperatorIn, models.OperatorNin:
		items, ok := asList(cond.Value)
		if !ok {
			return false, fmt.Errorf("%w: operator %s requires a list value", models.ErrConditionEvaluation, cond.Operator)
		}

		member := false

		for _, item := range items {
			if equal(actual, item) {
				member = true

				break
			}
		}

		if cond.Operator == models.OperatorIn {
			return member, nil
		}

		return !member, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", models.ErrConditionEvaluation, cond.Operator)
	}
}

// equal normalises both sides to the type implied by expected: numeric when
// expected parses as a number and actual coerces too, string otherwise.
func equal(actual, expected any) bool {
	if e, ok := toFloat(expected); ok {
		if a, ok := toFloat(actual); ok {
			return a == e
		}
	}

	return stringify(actual) == stringify(expected)
}

func compareOrdered(operator string, actual, expected any) (bool, error) {
	a, ok := toFloat(actual)
	if !ok {
		return false, fmt.Errorf("%w: value %v is not numeric", models.ErrConditionEvaluation, actual)
	}

	e, ok := toFloat(expected)
	if !ok {
		return false, fmt.Errorf("%w: comparison value %v is not numeric", models.ErrConditionEvaluation, expected)
	}

	switch operator {
	case models.OperatorGt:
		return a > e, nil
	case models.OperatorGte:
		return a >= e, nil
	case models.OperatorLt:
		return a < e, nil
	default:
		return a <= e, nil
	}
}

// toFloat coerces v to a finite number. NaN and infinities, including the
// strings "NaN" and "Inf", are not numeric and compare as strings.
func toFloat(v any) (float64, bool) {
	f, ok := numeric(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}

		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range rv.Len() {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}
