package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/ruleflow/pkg/builtin"
	"github.com/dukex/ruleflow/pkg/conditions"
	"github.com/dukex/ruleflow/pkg/config"
	"github.com/dukex/ruleflow/pkg/dispatch"
	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/metrics"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/recipients"
	"github.com/dukex/ruleflow/pkg/registry"
	"github.com/dukex/ruleflow/pkg/workflow"
	_ "github.com/lib/pq"
)

// EngineOptions selects the backends an Engine is assembled from.
type EngineOptions struct {
	Config            config.EngineConfig
	DatabaseURL       string
	EventBus          string
	KafkaBrokers      []string
	PluginsPath       string
	ActionDatabaseURL string
	Tracing           bool

	// Deps supplies the external collaborators. Publisher and
	// RecipientCacheTTL are filled in by NewEngine.
	Deps builtin.Deps
}

// Engine is a fully wired rule engine shared by the binaries.
type Engine struct {
	Registry    *registry.Registry
	Store       *workflow.Store
	Repository  *workflow.Repository
	Coordinator *workflow.Coordinator
	Persistence persistence.Persistence
	Bus         eventbus.EventBus
	Metrics     *metrics.Metrics

	logger   *slog.Logger
	actionDB *sql.DB
	tracing  *otelhelper.Tracing
}

func NewEngine(ctx context.Context, logger *slog.Logger, opts EngineOptions) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	persist, err := NewPersistence(ctx, logger, opts.DatabaseURL)
	if err != nil {
		return nil, err
	}

	bus, err := NewEventBus(opts.EventBus, opts.KafkaBrokers, logger)
	if err != nil {
		return nil, errors.Join(err, persist.Close(ctx))
	}

	engine := &Engine{
		Persistence: persist,
		Bus:         bus,
		Metrics:     metrics.NewMetrics(),
		logger:      logger.With("module", "engine"),
	}

	engine.tracing, err = newTracing(ctx, opts.Tracing)
	if err != nil {
		return nil, errors.Join(err, engine.Close(ctx))
	}

	tracer := engine.tracing.Tracer

	deps := opts.Deps
	deps.Publisher = bus
	deps.RecipientCacheTTL = opts.Config.RecipientCacheTTL

	if opts.ActionDatabaseURL != "" {
		engine.actionDB, err = sql.Open("postgres", opts.ActionDatabaseURL)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to open action database: %w", err), engine.Close(ctx))
		}

		deps.Database = engine.actionDB
	}

	engine.Registry, err = NewRegistry(logger, opts.PluginsPath, deps)
	if err != nil {
		return nil, errors.Join(err, engine.Close(ctx))
	}

	engine.Store = workflow.NewStore(logger)
	engine.Repository = workflow.NewRepository(persist, engine.Store, workflow.NewCompiler(engine.Registry), logger)

	dispatcher := dispatch.NewDispatcher(
		engine.Registry,
		recipients.NewSetResolver(engine.Registry, logger),
		opts.Config.DefaultActionTimeout,
		logger,
		dispatch.WithTracer(tracer),
		dispatch.WithObserver(engine.Metrics),
	)

	engine.Coordinator = workflow.NewCoordinator(
		engine.Store,
		conditions.NewEvaluator(engine.Registry, logger),
		dispatcher,
		logger,
		workflow.WithRecordStore(persist.ExecutionRepository()),
		workflow.WithRecordPublisher(eventbus.NewExecutionPublisher(bus)),
		workflow.WithVersionSource(engine.Repository),
		workflow.WithRecorder(engine.Metrics),
		workflow.WithCoordinatorTracer(tracer),
		workflow.WithExecutionTimeout(opts.Config.ExecutionTimeout),
		workflow.WithPool(opts.Config.WorkerPoolSize, opts.Config.MaxQueuedExecutions),
	)

	return engine, nil
}

func newTracing(ctx context.Context, enabled bool) (*otelhelper.Tracing, error) {
	if !enabled {
		return otelhelper.NoopTracing(), nil
	}

	return otelhelper.NewTracing(ctx, "ruleflow")
}

// Load reads every stored definition into the store.
func (e *Engine) Load(ctx context.Context) (int, error) {
	loaded, err := e.Repository.Load(ctx)
	e.RefreshGauges()

	return loaded, err
}

// RefreshGauges updates the gauges derived from the loaded definitions.
func (e *Engine) RefreshGauges() {
	e.Metrics.SetActiveWorkflows(e.Store.Snapshot().ActiveCount())
}

// HandleEntityChanged is the bus handler for entity.changed events. Invalid
// events and saturated pools are logged and acknowledged: redelivering would
// rerun the workflows that were admitted.
func (e *Engine) HandleEntityChanged(ctx context.Context, event any) error {
	changed, ok := event.(*events.EntityChanged)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	if err := changed.Validate(); err != nil {
		e.logger.WarnContext(ctx, "Dropping invalid entity event", "error", err)

		return nil
	}

	_, err := e.Handle(ctx, changed.Event)
	if err != nil {
		e.logger.WarnContext(ctx, "Event partially handled", "entity_type", changed.Event.EntityType, "error", err)
	}

	return nil
}

// Handle runs the coordinator for one inbound event.
func (e *Engine) Handle(ctx context.Context, event models.Event) ([]*models.ExecutionRecord, error) {
	return e.Coordinator.Handle(ctx, event)
}

// HandleSourceEvent adapts Handle to protocol.EventCallback.
func (e *Engine) HandleSourceEvent(ctx context.Context, event models.Event) error {
	_, err := e.Handle(ctx, event)

	return err
}

func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	if e.tracing != nil {
		errs = append(errs, e.tracing.Shutdown(ctx))
	}

	if e.Bus != nil {
		errs = append(errs, e.Bus.Close())
	}

	if e.actionDB != nil {
		errs = append(errs, e.actionDB.Close())
	}

	if e.Persistence != nil {
		errs = append(errs, e.Persistence.Close(ctx))
	}

	return errors.Join(errs...)
}
