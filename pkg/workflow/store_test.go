package workflow

import (
	"sync"
	"testing"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileTest(t *testing.T, overrides ...func(*models.WorkflowDefinition)) *CompiledWorkflow {
	t.Helper()

	compiled, err := NewCompiler(nil).Compile(testutil.CreateTestDefinition(overrides...))
	require.NoError(t, err)

	return compiled
}

func TestStore_Publish(t *testing.T) {
	store := NewStore(discard)
	empty := store.Snapshot()

	require.NoError(t, store.Publish(compileTest(t, testutil.WithDefinitionID("wf-1"))))
	require.NoError(t, store.Publish(compileTest(t, testutil.WithDefinitionID("wf-1"), testutil.WithVersion(2))))

	snapshot := store.Snapshot()
	current, ok := snapshot.Get("wf-1")
	require.True(t, ok)
	assert.Equal(t, 2, current.Version())

	v1, ok := snapshot.Version("wf-1", 1)
	require.True(t, ok)
	assert.Equal(t, 1, v1.Version())

	assert.Equal(t, 2, store.LatestVersion("wf-1"))
	assert.Greater(t, snapshot.Generation(), empty.Generation())

	// Earlier snapshots are unaffected by later publications.
	_, ok = empty.Get("wf-1")
	assert.False(t, ok)
	assert.Empty(t, empty.Workflows())
}

func TestStore_Publish_RejectsStaleVersion(t *testing.T) {
	store := NewStore(discard)

	require.NoError(t, store.Publish(compileTest(t, testutil.WithDefinitionID("wf-1"), testutil.WithVersion(3))))

	for _, version := range []int{1, 3} {
		err := store.Publish(compileTest(t, testutil.WithDefinitionID("wf-1"), testutil.WithVersion(version)))
		assert.ErrorIs(t, err, ErrStaleVersion)
	}

	current, _ := store.Snapshot().Get("wf-1")
	assert.Equal(t, 3, current.Version())
}

func TestStore_Remove(t *testing.T) {
	store := NewStore(discard)
	require.NoError(t, store.Publish(compileTest(t, testutil.WithDefinitionID("wf-1"))))

	assert.True(t, store.Remove("wf-1"))
	assert.False(t, store.Remove("wf-1"))

	snapshot := store.Snapshot()
	_, ok := snapshot.Get("wf-1")
	assert.False(t, ok)

	_, ok = snapshot.Version("wf-1", 1)
	assert.True(t, ok, "removed versions stay addressable")

	err := store.Publish(compileTest(t, testutil.WithDefinitionID("wf-1")))
	assert.ErrorIs(t, err, ErrStaleVersion)
}

func TestSnapshot_WorkflowsOrderedAndActiveCount(t *testing.T) {
	store := NewStore(discard)

	for _, id := range []string{"wf-c", "wf-a", "wf-b"} {
		require.NoError(t, store.Publish(compileTest(t, testutil.WithDefinitionID(id))))
	}

	require.NoError(t, store.Publish(compileTest(t, testutil.WithDefinitionID("wf-d"), testutil.WithStatus(models.WorkflowStatusDraft))))

	snapshot := store.Snapshot()

	ids := make([]string, 0, 4)
	for _, compiled := range snapshot.Workflows() {
		ids = append(ids, compiled.ID())
	}

	assert.Equal(t, []string{"wf-a", "wf-b", "wf-c", "wf-d"}, ids)
	assert.Equal(t, 3, snapshot.ActiveCount())
}

func TestStore_ConcurrentPublish(t *testing.T) {
	store := NewStore(discard)

	var wg sync.WaitGroup

	for i := 1; i <= 20; i++ {
		compiled := compileTest(t, testutil.WithDefinitionID("wf-1"), testutil.WithVersion(i))

		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = store.Publish(compiled)
			_ = store.Snapshot().Workflows()
		}()
	}

	wg.Wait()

	assert.Equal(t, 20, store.LatestVersion("wf-1"))
}
