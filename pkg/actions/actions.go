// Package actions holds the config handling shared by the built-in action
// executors. Each executor lives in its own subpackage.
package actions

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidConfig is returned when an action config does not fit its executor.
var ErrInvalidConfig = errors.New("invalid action config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateSchema checks config against the JSON schema an executor publishes.
func ValidateSchema(schema map[string]any, config map[string]any) error {
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

// Decode converts config into its typed view and checks its validate tags.
func Decode[T any](config map[string]any) (T, error) {
	out, err := models.DecodeConfig[T](config)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := validate.Struct(out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return out, nil
}

// Failed marks err as an executor-level failure.
func Failed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrActionExecution, fmt.Sprintf(format, args...))
}

// Logger returns the action's logger scoped to module.
func Logger(actionCtx protocol.ActionContext, module string) *slog.Logger {
	logger := actionCtx.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return logger.With("module", module, "action_id", actionCtx.ActionID)
}
