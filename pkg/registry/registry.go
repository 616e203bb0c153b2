// Package registry maps type strings to condition evaluators, action executors
// and recipient resolvers.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"plugin"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
)

// Kind is the capability a registered implementation provides.
type Kind string

const (
	KindCondition Kind = "condition"
	KindAction    Kind = "action"
	KindRecipient Kind = "recipient"
)

// Kinds lists every registrable kind.
var Kinds = []Kind{KindCondition, KindAction, KindRecipient}

var (
	ErrInvalidKind           = errors.New("invalid registry kind")
	ErrInvalidImplementation = errors.New("implementation does not satisfy kind")
	ErrEmptyTypeName         = errors.New("type name is required")
)

// PluginSymbol is the exported symbol a plugin must provide: a func(*Registry) error.
const PluginSymbol = "Register"

type key struct {
	kind     Kind
	typeName string
}

type bindings map[key]any

// Registry is a copy-on-write table of extension implementations. Lookups
// never lock; registrations serialize on a mutex and publish a new table, so
// a lookup never observes a partially applied registration.
type Registry struct {
	logger   *slog.Logger
	mu       sync.Mutex
	table    atomic.Pointer[bindings]
	replaced atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	r := &Registry{logger: log.With("module", "registry")}
	empty := bindings{}
	r.table.Store(&empty)

	return r
}

// Register binds impl to (kind, typeName). Re-registering an existing pair
// replaces the previous binding; the returned bool reports whether that happened.
func (r *Registry) Register(kind Kind, typeName string, impl any) (bool, error) {
	if typeName == "" {
		return false, ErrEmptyTypeName
	}

	if err := checkImplementation(kind, impl); err != nil {
		return false, fmt.Errorf("%s %q: %w", kind, typeName, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.table.Load()
	next := maps.Clone(current)

	k := key{kind: kind, typeName: typeName}
	_, replaced := current[k]
	next[k] = impl
	r.table.Store(&next)

	if replaced {
		r.replaced.Add(1)
		r.logger.Warn("Replaced registered implementation", "kind", kind, "type", typeName, "replaced", true)
	} else {
		r.logger.Debug("Registered implementation", "kind", kind, "type", typeName)
	}

	return replaced, nil
}

// RegisterConditionEvaluator binds a condition evaluator.
func (r *Registry) RegisterConditionEvaluator(typeName string, evaluator protocol.ConditionEvaluator) (bool, error) {
	return r.Register(KindCondition, typeName, evaluator)
}

// RegisterActionExecutor binds an action executor.
func (r *Registry) RegisterActionExecutor(typeName string, executor protocol.ActionExecutor) (bool, error) {
	return r.Register(KindAction, typeName, executor)
}

// RegisterRecipientResolver binds a recipient resolver.
func (r *Registry) RegisterRecipientResolver(typeName string, resolver protocol.RecipientResolver) (bool, error) {
	return r.Register(KindRecipient, typeName, resolver)
}

// Lookup returns the implementation bound to (kind, typeName).
func (r *Registry) Lookup(kind Kind, typeName string) (any, error) {
	impl, ok := (*r.table.Load())[key{kind: kind, typeName: typeName}]
	if !ok {
		return nil, &models.RegistryLookupError{Kind: string(kind), TypeName: typeName}
	}

	return impl, nil
}

// ConditionEvaluator returns the evaluator registered for a condition type.
func (r *Registry) ConditionEvaluator(typeName string) (protocol.ConditionEvaluator, error) {
	return lookup[protocol.ConditionEvaluator](r, KindCondition, typeName)
}

// ActionExecutor returns the executor registered for an action type.
func (r *Registry) ActionExecutor(typeName string) (protocol.ActionExecutor, error) {
	return lookup[protocol.ActionExecutor](r, KindAction, typeName)
}

// RecipientResolver returns the resolver registered for a recipient type.
func (r *Registry) RecipientResolver(typeName string) (protocol.RecipientResolver, error) {
	return lookup[protocol.RecipientResolver](r, KindRecipient, typeName)
}

// Types lists the registered type names of a kind, sorted.
func (r *Registry) Types(kind Kind) []string {
	var types []string

	for k := range *r.table.Load() {
		if k.kind == kind {
			types = append(types, k.typeName)
		}
	}

	slices.Sort(types)

	return types
}

// Replacements returns how many registrations replaced an existing binding.
func (r *Registry) Replacements() int64 {
	return r.replaced.Load()
}

// LoadPlugins opens every *.so under pluginsPath and calls its Register symbol.
func (r *Registry) LoadPlugins(pluginsPath string) (int, error) {
	pluginPathList, err := fs.Glob(os.DirFS(pluginsPath), "*.so")
	if err != nil {
		return 0, err
	}

	l := r.logger.With(slog.String("path", pluginsPath))
	l.Info("Loading plugins", "count", len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(pluginsPath + "/" + p)
		if err != nil {
			return 0, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup(PluginSymbol)
		if err != nil {
			return 0, fmt.Errorf("plugin %s: %w", p, err)
		}

		register, ok := symbol.(func(*Registry) error)
		if !ok {
			return 0, fmt.Errorf("plugin %s: %s has type %T", p, PluginSymbol, symbol)
		}

		if err := register(r); err != nil {
			return 0, fmt.Errorf("plugin %s: %w", p, err)
		}

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return len(pluginPathList), nil
}

func lookup[T any](r *Registry, kind Kind, typeName string) (T, error) {
	var zero T

	impl, err := r.Lookup(kind, typeName)
	if err != nil {
		return zero, err
	}

	typed, ok := impl.(T)
	if !ok {
		return zero, &models.RegistryLookupError{Kind: string(kind), TypeName: typeName}
	}

	return typed, nil
}

func checkImplementation(kind Kind, impl any) error {
	var ok bool

	switch kind {
	case KindCondition:
		_, ok = impl.(protocol.ConditionEvaluator)
	case KindAction:
		_, ok = impl.(protocol.ActionExecutor)
	case KindRecipient:
		_, ok = impl.(protocol.RecipientResolver)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	if !ok {
		return fmt.Errorf("%w: %T", ErrInvalidImplementation, impl)
	}

	return nil
}
