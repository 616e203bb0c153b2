package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/conditions"
	"github.com/dukex/ruleflow/pkg/dispatch"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence/file"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/dukex/ruleflow/pkg/recipients"
	"github.com/dukex/ruleflow/pkg/registry"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

// calls counts executor invocations per action id.
type calls struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *calls) add(actionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts == nil {
		c.counts = map[string]int{}
	}

	c.counts[actionID]++
}

func (c *calls) count(actionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counts[actionID]
}

func (c *calls) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, v := range c.counts {
		n += v
	}

	return n
}

type testEngine struct {
	registry    *registry.Registry
	store       *Store
	compiler    *Compiler
	coordinator *Coordinator
	records     *file.ExecutionRepository
	calls       *calls

	// flaky fails while set.
	flaky *flag
}

type flag struct {
	mu  sync.Mutex
	set bool
}

func (f *flag) get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.set
}

func (f *flag) put(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.set = v
}

func newTestEngine(t *testing.T, opts ...CoordinatorOption) *testEngine {
	t.Helper()

	engine := &testEngine{
		registry: registry.NewRegistry(discard),
		store:    NewStore(discard),
		records:  file.NewExecutionRepository(t.TempDir()),
		calls:    &calls{},
		flaky:    &flag{set: true},
	}

	reg := engine.registry

	_, err := reg.RegisterConditionEvaluator(string(models.ConditionTypeField), conditions.FieldEvaluator{})
	require.NoError(t, err)

	_, err = reg.RegisterRecipientResolver(string(models.RecipientTypeRole), protocol.RecipientResolverFunc(
		func(_ context.Context, recipient models.Recipient, _ map[string]any) ([]models.Identity, error) {
			return []models.Identity{{ID: "u-" + recipient.Name, Kind: "user", Address: recipient.Name + "@example.com"}}, nil
		}))
	require.NoError(t, err)

	executors := map[string]protocol.ActionExecutorFunc{
		models.ActionTypeNotification: func(_ context.Context, _ map[string]any, ac protocol.ActionContext) (any, error) {
			engine.calls.add(ac.ActionID)

			return map[string]any{"delivered": len(ac.Recipients)}, nil
		},
		"fail": func(_ context.Context, _ map[string]any, ac protocol.ActionContext) (any, error) {
			engine.calls.add(ac.ActionID)

			return nil, errors.New("gateway unavailable")
		},
		"flaky": func(_ context.Context, _ map[string]any, ac protocol.ActionContext) (any, error) {
			engine.calls.add(ac.ActionID)

			if engine.flaky.get() {
				return nil, errors.New("temporarily unavailable")
			}

			return "recovered", nil
		},
		"block": func(ctx context.Context, _ map[string]any, ac protocol.ActionContext) (any, error) {
			engine.calls.add(ac.ActionID)

			<-ctx.Done()

			return nil, ctx.Err()
		},
	}

	for name, executor := range executors {
		_, err := reg.RegisterActionExecutor(name, executor)
		require.NoError(t, err)
	}

	engine.compiler = NewCompiler(reg)

	dispatcher := dispatch.NewDispatcher(reg, recipients.NewSetResolver(reg, discard), time.Second, discard)

	opts = append([]CoordinatorOption{
		WithRecordStore(engine.records),
		WithNow(func() time.Time { return time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) }),
	}, opts...)

	engine.coordinator = NewCoordinator(engine.store, conditions.NewEvaluator(reg, discard), dispatcher, discard, opts...)

	return engine
}

func (e *testEngine) publish(t *testing.T, def *models.WorkflowDefinition) *CompiledWorkflow {
	t.Helper()

	compiled, err := e.compiler.Compile(def)
	require.NoError(t, err)
	require.NoError(t, e.store.Publish(compiled))

	return compiled
}
