// Package custom provides the executor that dispatches to handlers
// registered by the embedding application.
package custom

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
)

// ErrUnknownHandler is returned when a custom action names an unregistered handler.
var ErrUnknownHandler = errors.New("unknown custom handler")

// Handler runs a custom action. config is the action's nested "config" value.
type Handler func(ctx context.Context, config map[string]any, actionCtx protocol.ActionContext) (any, error)

// HandlerSet holds named handlers. It is safe for concurrent use.
type HandlerSet struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewHandlerSet() *HandlerSet {
	return &HandlerSet{handlers: make(map[string]Handler)}
}

// Register binds name to handler, replacing any previous binding.
func (s *HandlerSet) Register(name string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[name] = handler
}

func (s *HandlerSet) Lookup(name string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handler, ok := s.handlers[name]

	return handler, ok
}

// Names lists the registered handlers in sorted order.
func (s *HandlerSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.handlers))
}

type Executor struct {
	handlers *HandlerSet
}

func NewExecutor(handlers *HandlerSet) *Executor {
	if handlers == nil {
		handlers = NewHandlerSet()
	}

	return &Executor{handlers: handlers}
}

func (*Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"handler": map[string]any{"type": "string", "minLength": 1},
			"config":  map[string]any{"type": "object"},
		},
		"required":             []string{"handler"},
		"additionalProperties": false,
	}
}

// ValidateConfig rejects configs naming a handler that is not registered.
func (e *Executor) ValidateConfig(config map[string]any) error {
	if err := actions.ValidateSchema(e.Schema(), config); err != nil {
		return err
	}

	cfg, err := actions.Decode[models.CustomConfig](config)
	if err != nil {
		return err
	}

	if _, ok := e.handlers.Lookup(cfg.Handler); !ok {
		return fmt.Errorf("%w: %w %q", actions.ErrInvalidConfig, ErrUnknownHandler, cfg.Handler)
	}

	return nil
}

func (e *Executor) Execute(ctx context.Context, config map[string]any, actionCtx protocol.ActionContext) (any, error) {
	cfg, err := actions.Decode[models.CustomConfig](config)
	if err != nil {
		return nil, err
	}

	handler, ok := e.handlers.Lookup(cfg.Handler)
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", models.ErrActionExecution, ErrUnknownHandler, cfg.Handler)
	}

	output, err := handler(ctx, cfg.Config, actionCtx)
	if err != nil && !errors.Is(err, models.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		return output, fmt.Errorf("%w: handler %s: %w", models.ErrActionExecution, cfg.Handler, err)
	}

	return output, err
}
