package cmd

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/builtin"
	"github.com/dukex/ruleflow/pkg/config"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

type staticDirectory struct{}

func (staticDirectory) User(_ context.Context, id string) (models.Identity, error) {
	return models.Identity{ID: id, Kind: "user", Address: id + "@example.com"}, nil
}

func (staticDirectory) UsersInRole(_ context.Context, role string) ([]models.Identity, error) {
	return []models.Identity{{ID: "u-" + role, Kind: "user", Address: role + "@example.com"}}, nil
}

func (staticDirectory) GroupMembers(context.Context, string) ([]models.Identity, error) {
	return nil, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	engine, err := NewEngine(t.Context(), discard, EngineOptions{
		Config:      config.Default(),
		DatabaseURL: "file://" + t.TempDir(),
		EventBus:    "gochannel",
		Deps:        builtin.Deps{Directory: staticDirectory{}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(context.Background()) })

	return engine
}

func TestEngine_EntityChangedEndToEnd(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Repository.Publish(t.Context(), testutil.CreateTestDefinition(testutil.WithDefinitionID("wf-orders")))
	require.NoError(t, err)

	completed := make(chan *models.ExecutionRecord, 1)
	notifications := make(chan *events.NotificationRequested, 1)

	require.NoError(t, engine.Bus.Handle(events.EntityChangedEvent, engine.HandleEntityChanged))
	require.NoError(t, engine.Bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		completed <- event.(*events.ExecutionCompleted).Record

		return nil
	}))
	require.NoError(t, engine.Bus.Handle(events.NotificationRequestedEvent, func(_ context.Context, event any) error {
		notifications <- event.(*events.NotificationRequested)

		return nil
	}))
	require.NoError(t, engine.Bus.Subscribe(t.Context()))

	change := testutil.CreateTestEvent(map[string]any{"total": 150.0})
	require.NoError(t, engine.Bus.Publish(t.Context(), change.EntityID, events.NewEntityChanged(change)))

	select {
	case notification := <-notifications:
		assert.Equal(t, "u-sales_manager", notification.Recipient.ID)
		assert.Equal(t, "Order order-1", notification.Title)
		assert.Equal(t, "total 150", notification.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification requested")
	}

	select {
	case record := <-completed:
		assert.Equal(t, models.ExecutionStatusSuccess, record.Status)
		assert.Equal(t, "wf-orders", record.WorkflowID)

		stored, err := engine.Persistence.ExecutionRepository().GetByID(t.Context(), record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.Status, stored.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("no execution completed")
	}
}

func TestEngine_LoadRefreshesState(t *testing.T) {
	root := t.TempDir()

	first, err := NewEngine(t.Context(), discard, EngineOptions{Config: config.Default(), DatabaseURL: root, EventBus: "gochannel"})
	require.NoError(t, err)

	_, err = first.Repository.Publish(t.Context(), testutil.CreateTestDefinition(testutil.WithDefinitionID("wf-1")))
	require.NoError(t, err)
	require.NoError(t, first.Close(t.Context()))

	second, err := NewEngine(t.Context(), discard, EngineOptions{Config: config.Default(), DatabaseURL: "file://" + root, EventBus: "gochannel"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(context.Background()) })

	loaded, err := second.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, second.Store.Snapshot().ActiveCount())
}

func TestNewEngine_Rejections(t *testing.T) {
	tests := []struct {
		name string
		opts EngineOptions
	}{
		{name: "invalid config", opts: EngineOptions{Config: config.EngineConfig{}, DatabaseURL: t.TempDir(), EventBus: "gochannel"}},
		{name: "unknown persistence", opts: EngineOptions{Config: config.Default(), DatabaseURL: "mongodb://localhost", EventBus: "gochannel"}},
		{name: "unknown bus", opts: EngineOptions{Config: config.Default(), DatabaseURL: t.TempDir(), EventBus: "nats"}},
		{name: "kafka without brokers", opts: EngineOptions{Config: config.Default(), DatabaseURL: t.TempDir(), EventBus: "kafka"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(t.Context(), discard, tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestParsePersistenceProvider(t *testing.T) {
	tests := map[string]string{
		"postgres://user@localhost/db":   "postgresql",
		"postgresql://user@localhost/db": "postgresql",
		"file:///var/lib/ruleflow":       "file",
		"./data":                         "file",
		"mongodb://localhost":            "mongodb",
	}

	for url, want := range tests {
		assert.Equal(t, want, parsePersistenceProvider(url), url)
	}
}
