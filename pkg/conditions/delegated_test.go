package conditions

import (
	"testing"

	"github.com/dukex/ruleflow/pkg/mocks"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRoleEvaluator(t *testing.T) {
	roles := new(mocks.MockRoleService)
	roles.On("UserRoles", mock.Anything, "u1").Return([]string{"sales", "manager"}, nil)

	evaluator := RoleEvaluator{Roles: roles}
	data := map[string]any{"owner_id": "u1"}

	tests := []struct {
		name      string
		cond      models.Condition
		expected  bool
		expectErr bool
	}{
		{name: "has role", cond: models.RoleCondition("has_role", "owner_id", "manager"), expected: true},
		{name: "has role uses first role", cond: models.RoleCondition("has_role", "owner_id", "admin", "sales"), expected: false},
		{name: "has any role", cond: models.RoleCondition("has_any_role", "owner_id", "admin", "sales"), expected: true},
		{name: "has all roles", cond: models.RoleCondition("has_all_roles", "owner_id", "sales", "manager"), expected: true},
		{name: "has all roles missing one", cond: models.RoleCondition("has_all_roles", "owner_id", "sales", "admin"), expected: false},
		{name: "missing user field", cond: models.RoleCondition("has_role", "assignee_id", "sales"), expectErr: true},
		{name: "no roles", cond: models.RoleCondition("has_role", "owner_id"), expectErr: true},
		{name: "unknown check", cond: models.RoleCondition("is_root", "owner_id", "sales"), expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(t.Context(), protocol.ConditionInput{Condition: tt.cond, EntityData: data})
			if tt.expectErr {
				assert.ErrorIs(t, err, models.ErrConditionEvaluation)
				assert.False(t, result)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRoleEvaluator_WithoutService(t *testing.T) {
	_, err := RoleEvaluator{}.Evaluate(t.Context(), protocol.ConditionInput{
		Condition:  models.RoleCondition("has_role", "owner_id", "sales"),
		EntityData: map[string]any{"owner_id": "u1"},
	})

	assert.ErrorIs(t, err, ErrNoRoleService)
}

func TestQueryEvaluator(t *testing.T) {
	data := map[string]any{"id": "o-1"}

	queries := new(mocks.MockQueryService)
	queries.On("Match", mock.Anything, "overdue", data).Return(true, nil).Once()

	result, err := QueryEvaluator{Queries: queries}.Evaluate(t.Context(), protocol.ConditionInput{
		Condition:  models.QueryMatchCondition("overdue"),
		EntityData: data,
	})

	require.NoError(t, err)
	assert.True(t, result)
	queries.AssertExpectations(t)

	_, err = QueryEvaluator{Queries: queries}.Evaluate(t.Context(), protocol.ConditionInput{Condition: models.QueryMatchCondition("")})
	assert.ErrorIs(t, err, models.ErrConditionEvaluation)

	_, err = QueryEvaluator{}.Evaluate(t.Context(), protocol.ConditionInput{Condition: models.QueryMatchCondition("overdue")})
	assert.ErrorIs(t, err, ErrNoQueryService)
}
