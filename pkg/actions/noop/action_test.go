package noop

import (
	"context"
	"testing"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Execute(t *testing.T) {
	out, err := NewExecutor().Execute(t.Context(), map[string]any{"url": "https://example.com"}, protocol.ActionContext{
		ActionType: "webhook",
		Recipients: []models.Identity{{ID: "alice"}, {ID: "bob"}},
	})

	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, true, result["dry_run"])
	assert.Equal(t, "webhook", result["action_type"])
	assert.Equal(t, []string{"alice", "bob"}, result["recipients"])
}

func TestExecutor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewExecutor().Execute(ctx, nil, protocol.ActionContext{})
	assert.Error(t, err)
}
