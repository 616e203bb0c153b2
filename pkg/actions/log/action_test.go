package log_action

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAction_Execute(t *testing.T) {
	tests := []struct {
		name          string
		config        map[string]any
		expectedMsg   string
		expectedLevel string
	}{
		{
			name:          "nil config",
			config:        nil,
			expectedMsg:   defaultMessage,
			expectedLevel: "info",
		},
		{
			name:          "templated message",
			config:        map[string]any{"message": "order {{.entity_id}} total {{.entity.total}}"},
			expectedMsg:   "order order-42 total 150",
			expectedLevel: "info",
		},
		{
			name:          "explicit level",
			config:        map[string]any{"message": "debug message", "level": "debug"},
			expectedMsg:   "debug message",
			expectedLevel: "debug",
		},
		{
			name:          "unknown level falls back to info",
			config:        map[string]any{"message": "x", "level": "loud"},
			expectedMsg:   "x",
			expectedLevel: "info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			out, err := NewLogAction().Execute(t.Context(), tt.config, protocol.ActionContext{
				ExecutionID: "exec-1",
				EntityID:    "order-42",
				Operation:   models.OperationCreate,
				EntityData:  map[string]any{"total": 150.0},
				Logger:      logger,
			})
			require.NoError(t, err)

			assert.Equal(t, map[string]any{"message": tt.expectedMsg, "level": tt.expectedLevel}, out)
			assert.Contains(t, buf.String(), "execution_id=exec-1")
		})
	}
}

func TestLogAction_ValidateConfig(t *testing.T) {
	action := NewLogAction()

	assert.NoError(t, action.ValidateConfig(nil))
	assert.NoError(t, action.ValidateConfig(map[string]any{"message": "hi {{.entity_id}}", "level": "warn"}))
	assert.ErrorIs(t, action.ValidateConfig(map[string]any{"level": "loud"}), actions.ErrInvalidConfig)
	assert.ErrorIs(t, action.ValidateConfig(map[string]any{"message": "{{"}), actions.ErrInvalidConfig)
}
