package actions

import (
	"errors"
	"testing"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":    map[string]any{"type": "string", "minLength": 1},
		"priority": map[string]any{"type": "string", "enum": []string{"low", "normal"}},
	},
	"required": []string{"title"},
}

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{name: "valid", config: map[string]any{"title": "hi", "priority": "low"}},
		{name: "nil config misses required", config: nil, wantErr: true},
		{name: "wrong type", config: map[string]any{"title": 3}, wantErr: true},
		{name: "enum", config: map[string]any{"title": "hi", "priority": "urgent"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema(testSchema, tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestDecode(t *testing.T) {
	cfg, err := Decode[models.NotificationConfig](map[string]any{"title": "Order {{.entity_id}}", "priority": "high"})
	require.NoError(t, err)
	assert.Equal(t, "Order {{.entity_id}}", cfg.Title)
	assert.Equal(t, "high", cfg.Priority)

	_, err = Decode[models.NotificationConfig](map[string]any{"priority": "high"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Decode[models.WebhookConfig](map[string]any{"url": "not a url"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFailed(t *testing.T) {
	err := Failed("mailer rejected %d messages", 2)

	assert.True(t, errors.Is(err, models.ErrActionExecution))
	assert.Equal(t, models.ErrorKindActionExecution, models.KindOf(err))
	assert.Contains(t, err.Error(), "mailer rejected 2 messages")
}
