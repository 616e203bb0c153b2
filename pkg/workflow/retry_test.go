package workflow

import (
	"errors"
	"testing"

	"github.com/dukex/ruleflow/pkg/mocks"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func flakyDefinition() *models.WorkflowDefinition {
	return testutil.CreateTestDefinition(
		testutil.WithDefinitionID("wf-flaky"),
		testutil.WithActions(
			testutil.CreateTestAction(testutil.WithActionID("notify")),
			testutil.CreateTestAction(testutil.WithActionID("hook"), testutil.WithActionType("flaky")),
		),
	)
}

func runFlaky(t *testing.T, engine *testEngine) *models.ExecutionRecord {
	t.Helper()

	records, err := engine.coordinator.Handle(t.Context(), testutil.CreateTestEvent(map[string]any{"total": 150}))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, models.ExecutionStatusPartial, records[0].Status)

	return records[0]
}

func TestCoordinator_Retry_AppendsToSameExecution(t *testing.T) {
	recorder := &countingRecorder{}
	engine := newTestEngine(t, WithRecorder(recorder))
	engine.publish(t, flakyDefinition())

	record := runFlaky(t, engine)
	failed, ok := record.LatestResult("hook")
	require.True(t, ok)

	engine.flaky.put(false)

	updated, result, err := engine.coordinator.Retry(t.Context(), RetryCommand{ExecutionID: record.ID, ActionID: "hook"})
	require.NoError(t, err)

	assert.Equal(t, record.ID, updated.ID)
	assert.Equal(t, models.ActionStatusSuccess, result.Status)
	assert.Equal(t, 2, result.Attempt)
	assert.Equal(t, failed.ID, result.RetryOf)
	assert.Equal(t, models.ExecutionStatusSuccess, updated.Status)
	assert.Len(t, updated.ActionResults, 3)
	assert.Equal(t, record.ConditionTrace, updated.ConditionTrace)

	// Conditions are not re-evaluated and unrelated actions do not run again.
	assert.Equal(t, 1, engine.calls.count("notify"))
	assert.Equal(t, 2, engine.calls.count("hook"))

	stored, err := engine.records.GetByID(t.Context(), record.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ActionResults, 3)
	assert.Equal(t, models.ExecutionStatusSuccess, stored.Status)
	assert.Equal(t, 1, recorder.retries)
}

func TestCoordinator_Retry_FailingAgainKeepsPartial(t *testing.T) {
	engine := newTestEngine(t)
	engine.publish(t, flakyDefinition())

	record := runFlaky(t, engine)

	updated, result, err := engine.coordinator.Retry(t.Context(), RetryCommand{ExecutionID: record.ID, ActionID: "hook"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusFailure, result.Status)
	assert.Equal(t, models.ExecutionStatusPartial, updated.Status)

	_, again, err := engine.coordinator.Retry(t.Context(), RetryCommand{ExecutionID: record.ID, ActionID: "hook"})
	require.NoError(t, err)
	assert.Equal(t, 3, again.Attempt)
	assert.Equal(t, result.ID, again.RetryOf)
}

func TestCoordinator_Retry_UsesPinnedVersion(t *testing.T) {
	engine := newTestEngine(t)
	engine.publish(t, flakyDefinition())

	record := runFlaky(t, engine)

	// Version 2 drops the flaky action; the retry still runs the version 1 action.
	engine.publish(t, testutil.CreateTestDefinition(testutil.WithDefinitionID("wf-flaky"), testutil.WithVersion(2)))
	engine.flaky.put(false)

	updated, result, err := engine.coordinator.Retry(t.Context(), RetryCommand{ExecutionID: record.ID, ActionID: "hook"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusSuccess, result.Status)
	assert.Equal(t, 1, updated.WorkflowVersion)
}

func TestCoordinator_Retry_Rejections(t *testing.T) {
	engine := newTestEngine(t)
	engine.publish(t, flakyDefinition())

	record := runFlaky(t, engine)

	engine.publish(t, testutil.CreateTestDefinition(
		testutil.WithDefinitionID("wf-chain"),
		testutil.WithActions(
			testutil.CreateTestAction(testutil.WithActionID("ok")),
			testutil.CreateTestAction(testutil.WithActionID("a1"), testutil.WithActionType("fail")),
			testutil.CreateTestAction(testutil.WithActionID("a2"), testutil.WithDependencies("a1")),
		),
	))

	records, err := engine.coordinator.Handle(t.Context(), testutil.CreateTestEvent(map[string]any{"total": 150}))
	require.NoError(t, err)

	var chain *models.ExecutionRecord
	for _, r := range records {
		if r.WorkflowID == "wf-chain" {
			chain = r
		}
	}
	require.NotNil(t, chain)

	skipped, ok := chain.LatestResult("a2")
	require.True(t, ok)
	require.Equal(t, models.ActionStatusSkipped, skipped.Status)

	tests := []struct {
		name  string
		cmd   RetryCommand
		check func(error) bool
	}{
		{
			name:  "unknown execution",
			cmd:   RetryCommand{ExecutionID: "missing", ActionID: "hook"},
			check: persistence.IsExecutionNotFound,
		},
		{
			name:  "unknown action",
			cmd:   RetryCommand{ExecutionID: record.ID, ActionID: "sms"},
			check: func(err error) bool { return errors.Is(err, ErrActionNotFound) },
		},
		{
			name:  "succeeded action",
			cmd:   RetryCommand{ExecutionID: record.ID, ActionID: "notify"},
			check: func(err error) bool { return errors.Is(err, ErrNotRetryable) },
		},
		{
			name:  "dependent of a failed action",
			cmd:   RetryCommand{ExecutionID: chain.ID, ActionID: "a2"},
			check: func(err error) bool { return errors.Is(err, ErrNotRetryable) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := engine.coordinator.Retry(t.Context(), tt.cmd)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	assert.Equal(t, 2, engine.calls.count("notify"), "once per workflow run, never by a rejected retry")
	assert.Zero(t, engine.calls.count("a2"))

	stored, err := engine.records.GetByID(t.Context(), chain.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ActionResults, 3)
}

func TestCoordinator_Retry_RequiresRecordStore(t *testing.T) {
	engine := newTestEngine(t)
	engine.coordinator.records = nil

	_, _, err := engine.coordinator.Retry(t.Context(), RetryCommand{ExecutionID: "x", ActionID: "y"})
	assert.ErrorIs(t, err, ErrRetryUnavailable)
}

func TestCoordinator_Retry_SaveFailureLeavesRecordUntouched(t *testing.T) {
	engine := newTestEngine(t)
	engine.publish(t, flakyDefinition())

	record := runFlaky(t, engine)
	engine.flaky.put(false)

	store := &mocks.MockExecutionRepository{}
	store.On("GetByID", mock.Anything, record.ID).Return(record, nil)
	store.On("Save", mock.Anything, mock.AnythingOfType("*models.ExecutionRecord")).Return(errors.New("disk full"))
	engine.coordinator.records = store

	_, _, err := engine.coordinator.Retry(t.Context(), RetryCommand{ExecutionID: record.ID, ActionID: "hook"})
	require.ErrorContains(t, err, "disk full")

	assert.Len(t, record.ActionResults, 2, "the loaded record is copied before the retry result is appended")
	assert.Equal(t, models.ExecutionStatusPartial, record.Status)
	store.AssertExpectations(t)
}

func TestCoordinator_Retry_DependentAfterDependencyRecovers(t *testing.T) {
	engine := newTestEngine(t)
	engine.publish(t, testutil.CreateTestDefinition(
		testutil.WithDefinitionID("wf-flaky-chain"),
		testutil.WithActions(
			testutil.CreateTestAction(testutil.WithActionID("hook"), testutil.WithActionType("flaky")),
			testutil.CreateTestAction(testutil.WithActionID("notify"), testutil.WithDependencies("hook")),
		),
	))

	records, err := engine.coordinator.Handle(t.Context(), testutil.CreateTestEvent(map[string]any{"total": 150}))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, models.ExecutionStatusFailure, records[0].Status)

	id := records[0].ID

	_, _, err = engine.coordinator.Retry(t.Context(), RetryCommand{ExecutionID: id, ActionID: "notify"})
	require.ErrorIs(t, err, ErrNotRetryable)

	engine.flaky.put(false)

	_, result, err := engine.coordinator.Retry(t.Context(), RetryCommand{ExecutionID: id, ActionID: "hook"})
	require.NoError(t, err)
	require.Equal(t, models.ActionStatusSuccess, result.Status)

	updated, result, err := engine.coordinator.Retry(t.Context(), RetryCommand{ExecutionID: id, ActionID: "notify"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusSuccess, result.Status)
	assert.Equal(t, models.ExecutionStatusSuccess, updated.Status)
	assert.Equal(t, 1, engine.calls.count("notify"))
}
