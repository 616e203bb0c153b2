// Package schedule emits schedule ticks for active workflows whose trigger
// carries a cron expression.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// DefaultResyncInterval is how often the source reconciles its cron entries
// with the loaded workflows.
const DefaultResyncInterval = 30 * time.Second

// Parser accepts five or six field expressions and descriptors like @hourly.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// DefinitionLister lists the current version of every loaded workflow.
type DefinitionLister interface {
	FetchAll() []*models.WorkflowDefinition
}

type entryKey struct {
	workflowID string
	schedule   string
}

// Source runs one cron entry per scheduled active workflow.
type Source struct {
	definitions DefinitionLister
	logger      *slog.Logger
	resync      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	cron     *cron.Cron
	entries  map[entryKey]cron.EntryID
	callback protocol.EventCallback
	done     chan struct{}
	started  bool
}

type Option func(*Source)

// WithResyncInterval sets how often entries are reconciled with the
// definitions. A non-positive interval keeps the default.
func WithResyncInterval(interval time.Duration) Option {
	return func(s *Source) {
		if interval > 0 {
			s.resync = interval
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

func NewSource(definitions DefinitionLister, logger *slog.Logger, opts ...Option) *Source {
	s := &Source{
		definitions: definitions,
		logger:      logger.With("module", "schedule_source"),
		resync:      DefaultResyncInterval,
		now:         time.Now,
		entries:     make(map[entryKey]cron.EntryID),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Source) Validate() error {
	if s.definitions == nil {
		return protocol.ErrSourceMisconfigured
	}

	return nil
}

// Start schedules every eligible workflow and keeps the schedule in sync
// until ctx ends or Stop is called.
func (s *Source) Start(ctx context.Context, callback protocol.EventCallback) error {
	if err := s.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))

	s.callback = callback
	s.cron = cron.New(
		cron.WithParser(Parser),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger), cron.Recover(cronLogger)),
	)
	s.done = make(chan struct{})
	s.started = true

	s.syncLocked(ctx)
	s.cron.Start()

	go s.resyncLoop(ctx, s.done)

	s.logger.InfoContext(ctx, "Schedule source started", "entries", len(s.entries))

	return nil
}

func (s *Source) resyncLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(s.resync)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync(ctx)
		}
	}
}

// Sync adds entries for newly scheduled workflows and removes entries whose
// workflow is gone, inactive or rescheduled.
func (s *Source) Sync(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.syncLocked(ctx)
}

func (s *Source) syncLocked(ctx context.Context) {
	wanted := make(map[entryKey]*models.WorkflowDefinition)

	for _, def := range s.definitions.FetchAll() {
		if def.IsActive() && def.Trigger.Schedule != "" {
			wanted[entryKey{workflowID: def.ID, schedule: def.Trigger.Schedule}] = def
		}
	}

	for key, id := range s.entries {
		if _, ok := wanted[key]; !ok {
			s.cron.Remove(id)
			delete(s.entries, key)
			s.logger.InfoContext(ctx, "Unscheduled workflow", "workflow_id", key.workflowID, "schedule", key.schedule)
		}
	}

	for key, def := range wanted {
		if _, ok := s.entries[key]; ok {
			continue
		}

		id, err := s.cron.AddFunc(key.schedule, s.tick(ctx, def.ID, def.Trigger.EntityType, key.schedule))
		if err != nil {
			s.logger.ErrorContext(ctx, "Invalid schedule", "workflow_id", key.workflowID, "schedule", key.schedule, "error", err)

			continue
		}

		s.entries[key] = id
		s.logger.InfoContext(ctx, "Scheduled workflow", "workflow_id", key.workflowID, "schedule", key.schedule)
	}
}

func (s *Source) tick(ctx context.Context, workflowID, entityType, expr string) func() {
	return func() {
		event := Tick(workflowID, entityType, expr, s.now())

		if err := s.callback(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "Schedule tick failed", "workflow_id", workflowID, "error", err)
		}
	}
}

// Tick builds the event a schedule fires for workflowID.
func Tick(workflowID, entityType, expr string, firedAt time.Time) models.Event {
	return models.Event{
		ID:         uuid.New().String(),
		EntityType: entityType,
		Operation:  models.OperationSchedule,
		WorkflowID: workflowID,
		EntityData: map[string]any{
			"schedule": expr,
			"fired_at": firedAt.UTC().Format(time.RFC3339),
		},
		OccurredAt: firedAt,
	}
}

// Scheduled returns the number of active cron entries.
func (s *Source) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	close(s.done)
	<-s.cron.Stop().Done()

	s.entries = make(map[entryKey]cron.EntryID)
	s.started = false
	s.logger.InfoContext(ctx, "Schedule source stopped")

	return nil
}
