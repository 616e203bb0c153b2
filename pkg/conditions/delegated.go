package conditions

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
)

var (
	ErrNoRoleService  = errors.New("no role service configured")
	ErrNoQueryService = errors.New("no query service configured")
)

// RoleEvaluator checks the roles of the user referenced by the condition's user_field.
type RoleEvaluator struct {
	Roles protocol.RoleService
}

func (e RoleEvaluator) Evaluate(ctx context.Context, input protocol.ConditionInput) (bool, error) {
	cond := input.Condition

	if e.Roles == nil {
		return false, fmt.Errorf("%w: %w", models.ErrConditionEvaluation, ErrNoRoleService)
	}

	raw, ok := LookupField(input.EntityData, cond.UserField)
	if !ok || stringify(raw) == "" {
		return false, fmt.Errorf("%w: user field %q not found", models.ErrConditionEvaluation, cond.UserField)
	}

	if len(cond.Roles) == 0 {
		return false, fmt.Errorf("%w: role check requires roles", models.ErrConditionEvaluation)
	}

	held, err := e.Roles.UserRoles(ctx, stringify(raw))
	if err != nil {
		return false, fmt.Errorf("%w: role lookup: %w", models.ErrConditionEvaluation, err)
	}

	switch cond.Check {
	case models.RoleCheckHasRole:
		return slices.Contains(held, cond.Roles[0]), nil
	case models.RoleCheckHasAnyRole:
		return slices.ContainsFunc(cond.Roles, func(role string) bool { return slices.Contains(held, role) }), nil
	case models.RoleCheckHasAllRoles:
		for _, role := range cond.Roles {
			if !slices.Contains(held, role) {
				return false, nil
			}
		}

		return true, nil
	default:
		return false, fmt.Errorf("%w: unknown role check %q", models.ErrConditionEvaluation, cond.Check)
	}
}

// QueryEvaluator delegates to the query backend.
type QueryEvaluator struct {
	Queries protocol.QueryService
}

func (e QueryEvaluator) Evaluate(ctx context.Context, input protocol.ConditionInput) (bool, error) {
	if e.Queries == nil {
		return false, fmt.Errorf("%w: %w", models.ErrConditionEvaluation, ErrNoQueryService)
	}

	if input.Condition.QueryID == "" {
		return false, fmt.Errorf("%w: query_match requires query_id", models.ErrConditionEvaluation)
	}

	matched, err := e.Queries.Match(ctx, input.Condition.QueryID, input.EntityData)
	if err != nil {
		return false, fmt.Errorf("%w: query %s: %w", models.ErrConditionEvaluation, input.Condition.QueryID, err)
	}

	return matched, nil
}
