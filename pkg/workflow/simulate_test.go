package workflow

import (
	"testing"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_Simulate(t *testing.T) {
	tests := []struct {
		name      string
		req       SimulationRequest
		matched   bool
		status    models.ExecutionStatus
		actionsRn int
	}{
		{
			name:      "conditions pass",
			req:       SimulationRequest{Operation: models.OperationCreate, EntityID: "order-9", EntityData: map[string]any{"total": 150}},
			matched:   true,
			status:    models.ExecutionStatusSuccess,
			actionsRn: 1,
		},
		{
			name:    "conditions fail",
			req:     SimulationRequest{Operation: models.OperationCreate, EntityData: map[string]any{"total": 50}},
			matched: true,
			status:  models.ExecutionStatusSkipped,
		},
		{
			name:      "operation outside trigger still evaluates",
			req:       SimulationRequest{Operation: models.OperationDelete, EntityData: map[string]any{"total": 150}},
			matched:   false,
			status:    models.ExecutionStatusSuccess,
			actionsRn: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t)
			def := engine.publish(t, testutil.CreateTestDefinition(testutil.WithStatus(models.WorkflowStatusDraft))).Definition

			resp, err := engine.coordinator.Simulate(t.Context(), def.ID, tt.req)
			require.NoError(t, err)

			assert.NotEmpty(t, resp.ExecutionID)
			assert.Equal(t, def.ID, resp.WorkflowID)
			assert.Equal(t, 1, resp.WorkflowVersion)
			assert.Equal(t, tt.matched, resp.TriggerMatched)
			assert.Equal(t, tt.status, resp.OverallStatus)
			assert.Len(t, resp.Actions, tt.actionsRn)
			assert.NotEmpty(t, resp.Conditions)

			// Dry runs never reach the real executor and are never persisted.
			assert.Equal(t, 0, engine.calls.total())

			_, err = engine.records.GetByID(t.Context(), resp.ExecutionID)
			assert.True(t, persistence.IsExecutionNotFound(err))
		})
	}
}

func TestCoordinator_Simulate_ResolvesRecipients(t *testing.T) {
	engine := newTestEngine(t)
	def := engine.publish(t, testutil.CreateTestDefinition()).Definition

	resp, err := engine.coordinator.Simulate(t.Context(), def.ID, SimulationRequest{
		Operation:  models.OperationCreate,
		EntityData: map[string]any{"total": 150},
	})
	require.NoError(t, err)
	require.Len(t, resp.Actions, 1)

	assert.Equal(t, "u-sales_manager", resp.Actions[0].Recipients[0].ID)
}

func TestCoordinator_Simulate_UnknownWorkflow(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.coordinator.Simulate(t.Context(), "missing", SimulationRequest{Operation: models.OperationCreate})
	assert.ErrorIs(t, err, ErrWorkflowNotLoaded)
}
