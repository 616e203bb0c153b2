package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/ruleflow/pkg/dispatch"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultPoolSize         = 16
	DefaultExecutionTimeout = 5 * time.Minute
)

// ConditionRunner evaluates a workflow's top-level conditions.
type ConditionRunner interface {
	EvaluateAll(ctx context.Context, conditions []models.Condition, data map[string]any, now time.Time) (bool, []models.TraceNode)
}

// ActionRunner dispatches action plans and single actions.
type ActionRunner interface {
	Dispatch(ctx context.Context, plan *dispatch.Plan, req dispatch.Request) []models.ActionResult
	RunAction(ctx context.Context, action models.Action, req dispatch.Request, attempt int) models.ActionResult
}

// RecordStore persists finalized execution records.
type RecordStore interface {
	Save(ctx context.Context, record *models.ExecutionRecord) error
	GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
}

// RecordPublisher announces finalized execution records.
type RecordPublisher interface {
	PublishExecution(ctx context.Context, record *models.ExecutionRecord) error
}

// VersionSource resolves a pinned definition version for retries.
type VersionSource interface {
	Version(ctx context.Context, id string, version int) (*CompiledWorkflow, error)
}

// Recorder receives coordinator metrics.
type Recorder interface {
	RecordEvent(event models.Event)
	RecordExecution(record *models.ExecutionRecord)
	RecordRetry(result models.ActionResult)
	RecordPoolRejection()
	SetPoolInFlight(n int64)
}

// Coordinator receives events, matches them against the loaded workflows and
// runs each candidate through condition evaluation and action dispatch.
type Coordinator struct {
	store      *Store
	matcher    *TriggerMatcher
	conditions ConditionRunner
	actions    ActionRunner
	logger     *slog.Logger

	records   RecordStore
	publisher RecordPublisher
	versions  VersionSource
	recorder  Recorder
	tracer    trace.Tracer
	now       func() time.Time

	executionTimeout time.Duration
	poolSize         int64
	maxQueued        int64
	pool             *semaphore.Weighted
	pending          atomic.Int64
	inFlight         atomic.Int64

	retryLocks keyedMutex
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRecordStore persists finalized records and enables retries.
func WithRecordStore(records RecordStore) CoordinatorOption {
	return func(c *Coordinator) { c.records = records }
}

// WithRecordPublisher announces finalized records.
func WithRecordPublisher(publisher RecordPublisher) CoordinatorOption {
	return func(c *Coordinator) { c.publisher = publisher }
}

// WithVersionSource resolves pinned versions no longer held by the store.
func WithVersionSource(versions VersionSource) CoordinatorOption {
	return func(c *Coordinator) { c.versions = versions }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) CoordinatorOption {
	return func(c *Coordinator) { c.recorder = recorder }
}

// WithCoordinatorTracer sets the tracer used for execution spans.
func WithCoordinatorTracer(tracer trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) { c.tracer = tracer }
}

// WithNow overrides the clock that stamps record start and completion times
// and events arriving without occurred_at. Time conditions evaluate against
// the event's occurred_at.
func WithNow(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithExecutionTimeout sets the execution ceiling for workflows that do not
// set max_execution_time_ms.
func WithExecutionTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.executionTimeout = timeout }
}

// WithPool bounds concurrent executions to size, with at most maxQueued more
// waiting for a slot. Work beyond that is rejected with ErrPoolSaturated.
func WithPool(size, maxQueued int) CoordinatorOption {
	return func(c *Coordinator) {
		c.poolSize = int64(max(size, 1))
		c.maxQueued = int64(max(maxQueued, 0))
	}
}

// NewCoordinator creates a coordinator over store.
func NewCoordinator(store *Store, conditions ConditionRunner, actions ActionRunner, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:            store,
		matcher:          NewTriggerMatcher(logger),
		conditions:       conditions,
		actions:          actions,
		logger:           logger.With("module", "execution_coordinator"),
		tracer:           otelhelper.NoopTracer(),
		now:              time.Now,
		executionTimeout: DefaultExecutionTimeout,
		poolSize:         DefaultPoolSize,
		maxQueued:        DefaultPoolSize * 4,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.pool = semaphore.NewWeighted(c.poolSize)

	return c
}

// Handle runs every workflow triggered by event. Candidates run concurrently
// within the pool; Handle returns once all admitted executions are finalized.
// Records are returned in candidate order. Candidates rejected because the
// pool is saturated are reported through the returned error.
func (c *Coordinator) Handle(ctx context.Context, event models.Event) ([]*models.ExecutionRecord, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}

	if c.recorder != nil {
		c.recorder.RecordEvent(event)
	}

	snapshot := c.store.Snapshot()
	candidates := c.matcher.Match(snapshot, event)

	if len(candidates) == 0 {
		return nil, nil
	}

	c.logger.InfoContext(ctx, "Event matched workflows",
		"event_id", event.ID,
		"entity_type", event.EntityType,
		"operation", event.Operation,
		"matches", len(candidates))

	var (
		wg       sync.WaitGroup
		records  = make([]*models.ExecutionRecord, len(candidates))
		abandon  = make([]error, len(candidates))
		rejected []error
	)

	for i, compiled := range candidates {
		if !c.admit() {
			rejected = append(rejected, fmt.Errorf("workflow %s: %w", compiled.ID(), models.ErrPoolSaturated))

			c.logger.ErrorContext(ctx, "Execution rejected, pool saturated",
				"workflow_id", compiled.ID(),
				"event_id", event.ID,
				"pending", c.pending.Load())

			if c.recorder != nil {
				c.recorder.RecordPoolRejection()
			}

			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer c.pending.Add(-1)

			records[i], abandon[i] = c.runPooled(ctx, compiled, event)
		}()
	}

	wg.Wait()

	out := make([]*models.ExecutionRecord, 0, len(records))

	for _, record := range records {
		if record != nil {
			out = append(out, record)
		}
	}

	return out, errors.Join(append(rejected, abandon...)...)
}

// Pending returns the number of admitted executions not yet finished.
func (c *Coordinator) Pending() int64 {
	return c.pending.Load()
}

func (c *Coordinator) admit() bool {
	if c.pending.Add(1) > c.poolSize+c.maxQueued {
		c.pending.Add(-1)

		return false
	}

	return true
}

func (c *Coordinator) runPooled(ctx context.Context, compiled *CompiledWorkflow, event models.Event) (*models.ExecutionRecord, error) {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		c.logger.WarnContext(ctx, "Execution abandoned while queued", "workflow_id", compiled.ID(), "error", err)

		return nil, fmt.Errorf("workflow %s abandoned while queued: %w", compiled.ID(), err)
	}
	defer c.pool.Release(1)

	c.setInFlight(c.inFlight.Add(1))
	defer func() { c.setInFlight(c.inFlight.Add(-1)) }()

	return c.execute(ctx, compiled, event, false), nil
}

func (c *Coordinator) setInFlight(n int64) {
	if c.recorder != nil {
		c.recorder.SetPoolInFlight(n)
	}
}

// execute runs one workflow against one event:
// pending -> evaluating_conditions -> skipped | dispatching_actions -> success | partial | failure.
func (c *Coordinator) execute(ctx context.Context, compiled *CompiledWorkflow, event models.Event, dryRun bool) *models.ExecutionRecord {
	def := compiled.Definition

	record := &models.ExecutionRecord{
		ID:              uuid.New().String(),
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		Trigger:         event.Snapshot(),
		Status:          models.ExecutionStatusPending,
		DryRun:          dryRun,
		StartedAt:       c.now(),
	}

	timeout := def.MaxExecutionTime()
	if timeout <= 0 {
		timeout = c.executionTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "ruleflow.execution",
		attribute.String(otelhelper.ExecutionIDKey, record.ID),
		attribute.String(otelhelper.WorkflowIDKey, def.ID),
		attribute.Int(otelhelper.WorkflowVersionKey, def.Version),
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.EntityTypeKey, event.EntityType),
		attribute.String(otelhelper.OperationKey, string(event.Operation)),
	)
	defer span.End()

	logger := c.logger.With("execution_id", record.ID, "workflow_id", def.ID, "version", def.Version, "dry_run", dryRun)

	c.transition(record, models.ExecutionStatusEvaluatingConditions)

	satisfied, conditionTrace := c.conditions.EvaluateAll(ctx, def.Conditions, record.Trigger.EntityData, event.OccurredAt)
	record.ConditionTrace = conditionTrace

	if !satisfied {
		c.transition(record, models.ExecutionStatusSkipped)
	} else {
		c.transition(record, models.ExecutionStatusDispatchingActions)

		record.ActionResults = c.actions.Dispatch(ctx, compiled.Plan, dispatch.Request{
			ExecutionID:     record.ID,
			WorkflowID:      def.ID,
			WorkflowVersion: def.Version,
			Trigger:         record.Trigger,
			DryRun:          dryRun,
		})

		c.transition(record, models.Aggregate(record.ActionResults))

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			timeoutErr := fmt.Errorf("%w: execution exceeded %s", models.ErrTimeout, timeout)
			record.Error = timeoutErr.Error()
			otelhelper.SetError(span, timeoutErr)
		}
	}

	record.CompletedAt = c.now()

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(record.Status)))
	logger.InfoContext(ctx, "Execution finished",
		"status", record.Status,
		"actions", dispatch.Summary(record.ActionResults),
		"duration", record.CompletedAt.Sub(record.StartedAt))

	if !dryRun {
		c.finalize(context.WithoutCancel(ctx), record)
	}

	return record
}

var transitions = map[models.ExecutionStatus][]models.ExecutionStatus{
	models.ExecutionStatusPending:              {models.ExecutionStatusEvaluatingConditions},
	models.ExecutionStatusEvaluatingConditions: {models.ExecutionStatusSkipped, models.ExecutionStatusDispatchingActions},
	models.ExecutionStatusDispatchingActions:   {models.ExecutionStatusSuccess, models.ExecutionStatusPartial, models.ExecutionStatusFailure},
}

// transition moves record to next. An illegal transition is a programming
// error and panics.
func (c *Coordinator) transition(record *models.ExecutionRecord, next models.ExecutionStatus) {
	for _, allowed := range transitions[record.Status] {
		if allowed == next {
			c.logger.Debug("Execution transition", "execution_id", record.ID, "from", record.Status, "to", next)
			record.Status = next

			return
		}
	}

	panic(fmt.Sprintf("illegal execution transition %s -> %s", record.Status, next))
}

// finalize hands a finished record to the record store and publisher.
// Failures are logged; the execution itself is complete.
func (c *Coordinator) finalize(ctx context.Context, record *models.ExecutionRecord) {
	if c.recorder != nil {
		c.recorder.RecordExecution(record)
	}

	if c.records != nil {
		if err := c.records.Save(ctx, record); err != nil {
			c.logger.ErrorContext(ctx, "Failed to persist execution record", "execution_id", record.ID, "error", err)
		}
	}

	if c.publisher != nil {
		if err := c.publisher.PublishExecution(ctx, record); err != nil {
			c.logger.ErrorContext(ctx, "Failed to publish execution record", "execution_id", record.ID, "error", err)
		}
	}
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()

	if k.locks == nil {
		k.locks = map[string]*keyedLock{}
	}

	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}

	lock.refs++
	k.mu.Unlock()

	lock.Lock()

	return func() {
		lock.Unlock()

		k.mu.Lock()
		lock.refs--

		if lock.refs == 0 {
			delete(k.locks, key)
		}

		k.mu.Unlock()
	}
}
