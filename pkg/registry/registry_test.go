package registry

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executorReturning(value string) protocol.ActionExecutor {
	return protocol.ActionExecutorFunc(func(context.Context, map[string]any, protocol.ActionContext) (any, error) {
		return value, nil
	})
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(slog.Default())

	replaced, err := r.RegisterActionExecutor("sms", executorReturning("sent"))
	require.NoError(t, err)
	assert.False(t, replaced)

	executor, err := r.ActionExecutor("sms")
	require.NoError(t, err)

	out, err := executor.Execute(t.Context(), nil, protocol.ActionContext{})
	require.NoError(t, err)
	assert.Equal(t, "sent", out)
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry(slog.Default())

	_, err := r.ActionExecutor("sms")
	require.Error(t, err)
	assert.True(t, models.IsRegistryLookup(err))

	var lookupErr *models.RegistryLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "action", lookupErr.Kind)
	assert.Equal(t, "sms", lookupErr.TypeName)
}

func TestRegistry_KindsAreIsolated(t *testing.T) {
	r := NewRegistry(slog.Default())

	_, err := r.RegisterActionExecutor("custom", executorReturning("x"))
	require.NoError(t, err)

	_, err = r.ConditionEvaluator("custom")
	assert.True(t, models.IsRegistryLookup(err))
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	var buf bytes.Buffer

	r := NewRegistry(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	_, err := r.RegisterActionExecutor("sms", executorReturning("first"))
	require.NoError(t, err)

	replaced, err := r.RegisterActionExecutor("sms", executorReturning("second"))
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, int64(1), r.Replacements())
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "replaced=true")

	executor, err := r.ActionExecutor("sms")
	require.NoError(t, err)

	out, _ := executor.Execute(t.Context(), nil, protocol.ActionContext{})
	assert.Equal(t, "second", out)
}

func TestRegistry_RejectsInvalidRegistrations(t *testing.T) {
	r := NewRegistry(slog.Default())

	tests := []struct {
		name     string
		kind     Kind
		typeName string
		impl     any
		err      error
	}{
		{name: "empty type name", kind: KindAction, impl: executorReturning("x"), err: ErrEmptyTypeName},
		{name: "unknown kind", kind: "trigger", typeName: "x", impl: executorReturning("x"), err: ErrInvalidKind},
		{name: "wrong interface", kind: KindCondition, typeName: "x", impl: executorReturning("x"), err: ErrInvalidImplementation},
		{name: "nil implementation", kind: KindRecipient, typeName: "x", impl: nil, err: ErrInvalidImplementation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(tt.kind, tt.typeName, tt.impl)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRegistry_Types(t *testing.T) {
	r := NewRegistry(slog.Default())

	for _, name := range []string{"webhook", "email", "sms"} {
		_, err := r.RegisterActionExecutor(name, executorReturning(name))
		require.NoError(t, err)
	}

	_, err := r.RegisterRecipientResolver("user", protocol.RecipientResolverFunc(
		func(context.Context, models.Recipient, map[string]any) ([]models.Identity, error) { return nil, nil },
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"email", "sms", "webhook"}, r.Types(KindAction))
	assert.Equal(t, []string{"user"}, r.Types(KindRecipient))
	assert.Empty(t, r.Types(KindCondition))
}

func TestRegistry_ConcurrentLookupsDuringRegistration(t *testing.T) {
	r := NewRegistry(slog.New(slog.DiscardHandler))

	_, err := r.RegisterActionExecutor("stable", executorReturning("stable"))
	require.NoError(t, err)

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			_, _ = r.RegisterActionExecutor(fmt.Sprintf("type-%d", i), executorReturning("x"))
		}()

		go func() {
			defer wg.Done()

			_, err := r.ActionExecutor("stable")
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Len(t, r.Types(KindAction), 51)
}

func TestRegistry_LoadPluginsFromEmptyDir(t *testing.T) {
	r := NewRegistry(slog.Default())

	count, err := r.LoadPlugins(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, count)
}
