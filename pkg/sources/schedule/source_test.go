package schedule

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	mu   sync.Mutex
	defs []*models.WorkflowDefinition
}

func (l *staticLister) FetchAll() []*models.WorkflowDefinition {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.defs
}

func (l *staticLister) set(defs ...*models.WorkflowDefinition) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.defs = defs
}

func scheduled(id, expr string, status models.WorkflowStatus) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:      id,
		Status:  status,
		Trigger: models.Trigger{EntityType: "report", Operations: []models.Operation{models.OperationSchedule}, Schedule: expr},
	}
}

var discard = slog.New(slog.DiscardHandler)

func TestSource_Sync(t *testing.T) {
	lister := &staticLister{}
	lister.set(
		scheduled("wf-daily", "0 9 * * *", models.WorkflowStatusActive),
		scheduled("wf-draft", "0 9 * * *", models.WorkflowStatusDraft),
		&models.WorkflowDefinition{ID: "wf-entity", Status: models.WorkflowStatusActive},
	)

	source := NewSource(lister, discard, WithResyncInterval(time.Hour))
	require.NoError(t, source.Start(t.Context(), func(context.Context, models.Event) error { return nil }))
	t.Cleanup(func() { _ = source.Stop(context.Background()) })

	assert.Equal(t, 1, source.Scheduled())

	lister.set(
		scheduled("wf-daily", "0 10 * * *", models.WorkflowStatusActive),
		scheduled("wf-draft", "@hourly", models.WorkflowStatusActive),
	)
	source.Sync(t.Context())
	assert.Equal(t, 2, source.Scheduled(), "rescheduled workflow replaces its entry")

	lister.set()
	source.Sync(t.Context())
	assert.Equal(t, 0, source.Scheduled())
}

func TestSource_EmitsTicks(t *testing.T) {
	lister := &staticLister{}
	lister.set(scheduled("wf-every", "@every 1s", models.WorkflowStatusActive))

	fixed := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	ticks := make(chan models.Event, 4)

	source := NewSource(lister, discard, WithNow(func() time.Time { return fixed }))
	require.NoError(t, source.Start(t.Context(), func(_ context.Context, event models.Event) error {
		ticks <- event

		return nil
	}))
	t.Cleanup(func() { _ = source.Stop(context.Background()) })

	select {
	case event := <-ticks:
		assert.Equal(t, models.OperationSchedule, event.Operation)
		assert.Equal(t, "wf-every", event.WorkflowID)
		assert.Equal(t, "report", event.EntityType)
		assert.Equal(t, fixed, event.OccurredAt)
		assert.Equal(t, "@every 1s", event.EntityData["schedule"])
	case <-time.After(3 * time.Second):
		t.Fatal("no tick emitted")
	}
}

func TestSource_StopIsIdempotent(t *testing.T) {
	source := NewSource(&staticLister{}, discard)

	require.NoError(t, source.Stop(t.Context()))
	require.NoError(t, source.Start(t.Context(), func(context.Context, models.Event) error { return nil }))
	require.NoError(t, source.Stop(t.Context()))
	require.NoError(t, source.Stop(t.Context()))
	assert.Equal(t, 0, source.Scheduled())
}

func TestSource_Validate(t *testing.T) {
	assert.Error(t, NewSource(nil, discard).Validate())
}

func TestParser(t *testing.T) {
	for _, expr := range []string{"0 9 * * 1-5", "*/30 * * * * *", "@daily", "@every 5m"} {
		_, err := Parser.Parse(expr)
		assert.NoError(t, err, expr)
	}

	_, err := Parser.Parse("every day")
	assert.Error(t, err)
}
