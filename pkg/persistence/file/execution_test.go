package file

import (
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRepository_SaveAndGet(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())

	record := testutil.CreateTestRecord("orders", models.ActionResult{ID: "r1", ActionID: "notify", Status: models.ActionStatusFailure, Error: "smtp down"})
	require.NoError(t, repo.Save(t.Context(), record))

	got, err := repo.GetByID(t.Context(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.WorkflowID, got.WorkflowID)
	assert.Equal(t, models.ExecutionStatusFailure, got.Status)
	require.Len(t, got.ActionResults, 1)
	assert.Equal(t, "smtp down", got.ActionResults[0].Error)
	assert.Equal(t, float64(150), got.Trigger.EntityData["total"])

	record.ActionResults = append(record.ActionResults, models.ActionResult{ID: "r2", ActionID: "notify", Status: models.ActionStatusSuccess, RetryOf: "r1"})
	record.Status = models.Aggregate(record.ActionResults)
	require.NoError(t, repo.Save(t.Context(), record))

	got, err = repo.GetByID(t.Context(), record.ID)
	require.NoError(t, err)
	assert.Len(t, got.ActionResults, 2)
	assert.Equal(t, models.ExecutionStatusSuccess, got.Status)

	_, err = repo.GetByID(t.Context(), "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_List(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())

	empty, err := repo.List(t.Context(), persistence.ListExecutionsOptions{})
	require.NoError(t, err)
	assert.Empty(t, empty.Executions)
	assert.NotNil(t, empty.Executions)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, workflowID := range []string{"orders", "orders", "invoices", "orders"} {
		record := testutil.CreateTestRecord(workflowID)
		record.StartedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Save(t.Context(), record))
	}

	tests := []struct {
		name      string
		opts      persistence.ListExecutionsOptions
		count     int
		total     int64
		next      bool
		firstTime time.Time
	}{
		{name: "all newest first", opts: persistence.ListExecutionsOptions{}, count: 4, total: 4, firstTime: base.Add(3 * time.Minute)},
		{name: "by workflow", opts: persistence.ListExecutionsOptions{WorkflowID: "invoices"}, count: 1, total: 1, firstTime: base.Add(2 * time.Minute)},
		{name: "paged", opts: persistence.ListExecutionsOptions{WorkflowID: "orders", Limit: 2, SortOrder: "asc"}, count: 2, total: 3, next: true, firstTime: base},
		{name: "offset past end", opts: persistence.ListExecutionsOptions{Offset: 10}, count: 0, total: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(t.Context(), tt.opts)
			require.NoError(t, err)
			assert.Len(t, result.Executions, tt.count)
			assert.Equal(t, tt.total, result.TotalCount)
			assert.Equal(t, tt.next, result.HasNextPage)

			if tt.count > 0 {
				assert.True(t, tt.firstTime.Equal(result.Executions[0].StartedAt))
			}
		})
	}

	_, err = repo.List(t.Context(), persistence.ListExecutionsOptions{SortOrder: "random"})
	assert.ErrorIs(t, err, persistence.ErrInvalidSortOrder)
}
