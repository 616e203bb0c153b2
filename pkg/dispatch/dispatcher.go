// Package dispatch runs a satisfied workflow's actions wave by wave,
// isolating failures and timeouts per action.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/ruleflow/pkg/actions/noop"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExecutorLookup resolves an action type to its executor.
type ExecutorLookup interface {
	ActionExecutor(typeName string) (protocol.ActionExecutor, error)
}

// RecipientSetResolver resolves all recipient descriptors of one action.
type RecipientSetResolver interface {
	ResolveAll(ctx context.Context, recipients []models.Recipient, data map[string]any) ([]models.Identity, []error)
}

// Observer receives every action result, typically for metrics.
type Observer interface {
	RecordAction(result models.ActionResult)
	RecordRecipientErrors(actionType string, count int)
}

// Request identifies the execution an action runs for.
type Request struct {
	ExecutionID     string
	WorkflowID      string
	WorkflowVersion int
	Trigger         models.TriggerSnapshot
	DryRun          bool
}

// Dispatcher executes action plans.
type Dispatcher struct {
	executors      ExecutorLookup
	recipients     RecipientSetResolver
	dryRun         protocol.ActionExecutor
	defaultTimeout time.Duration
	logger         *slog.Logger
	tracer         trace.Tracer
	observer       Observer
	now            func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracer sets the tracer used for per-action spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

// WithObserver sets the observer notified of each result.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) { d.observer = observer }
}

// WithClock overrides the clock used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithDryRunExecutor overrides the stand-in executor used for dry runs.
func WithDryRunExecutor(executor protocol.ActionExecutor) Option {
	return func(d *Dispatcher) { d.dryRun = executor }
}

// NewDispatcher creates a dispatcher. defaultTimeout applies to actions that
// do not set max_execution_time_ms.
func NewDispatcher(executors ExecutorLookup, recipients RecipientSetResolver, defaultTimeout time.Duration, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		executors:      executors,
		recipients:     recipients,
		dryRun:         noop.NewExecutor(),
		defaultTimeout: defaultTimeout,
		logger:         logger.With("module", "action_dispatcher"),
		tracer:         otelhelper.NoopTracer(),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

type completion struct {
	index  int
	result models.ActionResult
}

// Dispatch runs every action of plan and returns the results in completion
// order. Waves are separated by a barrier. An action whose dependency did not
// succeed is skipped without being attempted. Once ctx is done, every action
// not yet finished is recorded as a timeout failure.
func (d *Dispatcher) Dispatch(ctx context.Context, plan *Plan, req Request) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(plan.Actions))
	statuses := make([]models.ActionStatus, len(plan.Actions))

	for _, wave := range plan.Waves {
		if ctx.Err() != nil {
			for _, i := range wave {
				results = append(results, d.expired(ctx, plan.Actions[i]))
			}

			continue
		}

		eligible := make([]int, 0, len(wave))

		for _, i := range wave {
			if blocker, ok := unmetDependency(plan, statuses, i); ok {
				statuses[i] = models.ActionStatusSkipped
				results = append(results, d.skipped(plan.Actions[i], blocker))

				continue
			}

			eligible = append(eligible, i)
		}

		done := make(chan completion, len(eligible))

		for _, i := range eligible {
			go func(i int) {
				done <- completion{index: i, result: d.RunAction(ctx, plan.Actions[i], req, 1)}
			}(i)
		}

		for range eligible {
			c := <-done
			statuses[c.index] = c.result.Status
			results = append(results, c.result)
		}
	}

	return results
}

func unmetDependency(plan *Plan, statuses []models.ActionStatus, i int) (string, bool) {
	for _, j := range plan.Dependencies[i] {
		if statuses[j] != models.ActionStatusSuccess {
			return plan.Actions[j].ID, true
		}
	}

	return "", false
}

// RunAction runs a single action: executor lookup, recipient resolution and
// invocation under the action's own timeout. It never panics and never
// returns an error; failures are captured on the result.
func (d *Dispatcher) RunAction(ctx context.Context, action models.Action, req Request, attempt int) models.ActionResult {
	result := models.ActionResult{
		ID:         uuid.NewString(),
		ActionID:   action.ID,
		ActionType: action.Type,
		Attempt:    attempt,
		StartedAt:  d.now(),
	}

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "ruleflow.action",
		attribute.String(otelhelper.ExecutionIDKey, req.ExecutionID),
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, action.Type),
	)
	defer span.End()

	logger := d.logger.With("execution_id", req.ExecutionID, "action_id", action.ID, "action_type", action.Type)

	finish := func(output any, err error) models.ActionResult {
		result.CompletedAt = d.now()
		result.Output = output

		if err != nil {
			result.Status = models.ActionStatusFailure
			result.Error = err.Error()
			result.ErrorKind = models.KindOf(err)

			otelhelper.SetError(span, err)
			logger.WarnContext(ctx, "Action failed", "error", err, "error_kind", result.ErrorKind)
		} else {
			result.Status = models.ActionStatusSuccess

			logger.DebugContext(ctx, "Action succeeded")
		}

		span.SetAttributes(attribute.String(otelhelper.StatusKey, string(result.Status)))

		if d.observer != nil {
			d.observer.RecordAction(result)
		}

		return result
	}

	executor, err := d.executors.ActionExecutor(action.Type)
	if err != nil {
		return finish(nil, err)
	}

	if req.DryRun {
		executor = d.dryRun
	}

	data := models.CloneData(req.Trigger.EntityData)

	identities, resolveErrs := d.recipients.ResolveAll(ctx, action.Recipients, data)
	for _, resolveErr := range resolveErrs {
		result.Notes = append(result.Notes, resolveErr.Error())
	}

	if d.observer != nil {
		d.observer.RecordRecipientErrors(action.Type, len(resolveErrs))
	}

	result.Recipients = identities

	actionCtx := protocol.ActionContext{
		ExecutionID:     req.ExecutionID,
		WorkflowID:      req.WorkflowID,
		WorkflowVersion: req.WorkflowVersion,
		ActionID:        action.ID,
		ActionType:      action.Type,
		Attempt:         attempt,
		IdempotencyKey:  protocol.IdempotencyKey(req.ExecutionID, action.ID),
		EntityType:      req.Trigger.EntityType,
		EntityID:        req.Trigger.EntityID,
		Operation:       req.Trigger.Operation,
		EntityData:      data,
		Recipients:      identities,
		DryRun:          req.DryRun,
		Logger:          logger,
	}

	output, err := d.invoke(ctx, executor, action, actionCtx)

	return finish(output, err)
}

type outcome struct {
	output any
	err    error
}

// invoke runs the executor in its own goroutine so a slow executor that
// ignores ctx cannot hold the wave past its timeout.
func (d *Dispatcher) invoke(ctx context.Context, executor protocol.ActionExecutor, action models.Action, actionCtx protocol.ActionContext) (any, error) {
	timeout := action.Timeout(d.defaultTimeout)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("executor panicked: %v", r)}
			}
		}()

		output, err := executor.Execute(runCtx, action.Config, actionCtx)
		done <- outcome{output: output, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if runCtx.Err() != nil {
				return o.output, models.NewActionError(action.ID, fmt.Errorf("%w: %w", timeoutCause(ctx, runCtx, timeout), o.err))
			}

			return o.output, models.NewActionError(action.ID, o.err)
		}

		return o.output, nil
	case <-runCtx.Done():
		return nil, models.NewActionError(action.ID, timeoutCause(ctx, runCtx, timeout))
	}
}

func timeoutCause(parent, runCtx context.Context, timeout time.Duration) error {
	switch {
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: execution deadline exceeded", models.ErrTimeout)
	case parent.Err() != nil:
		return fmt.Errorf("execution canceled: %w", parent.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: action exceeded %s", models.ErrTimeout, timeout)
	default:
		return runCtx.Err()
	}
}

func (d *Dispatcher) skipped(action models.Action, blocker string) models.ActionResult {
	now := d.now()
	result := models.ActionResult{
		ID:          uuid.NewString(),
		ActionID:    action.ID,
		ActionType:  action.Type,
		Status:      models.ActionStatusSkipped,
		Error:       fmt.Sprintf("dependency %q did not succeed", blocker),
		ErrorKind:   models.ErrorKindDependencySkipped,
		StartedAt:   now,
		CompletedAt: now,
	}

	if d.observer != nil {
		d.observer.RecordAction(result)
	}

	return result
}

func (d *Dispatcher) expired(ctx context.Context, action models.Action) models.ActionResult {
	now := d.now()

	cause := fmt.Errorf("%w: execution deadline exceeded before start", models.ErrTimeout)
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		cause = fmt.Errorf("execution canceled before start: %w", ctx.Err())
	}

	result := models.ActionResult{
		ID:          uuid.NewString(),
		ActionID:    action.ID,
		ActionType:  action.Type,
		Status:      models.ActionStatusFailure,
		Error:       cause.Error(),
		ErrorKind:   models.KindOf(cause),
		StartedAt:   now,
		CompletedAt: now,
	}

	if d.observer != nil {
		d.observer.RecordAction(result)
	}

	return result
}

// Summary renders a one-line description of results for logs.
func Summary(results []models.ActionResult) string {
	parts := make([]string, 0, len(results))
	for _, result := range results {
		parts = append(parts, result.ActionID+"="+string(result.Status))
	}

	return strings.Join(parts, " ")
}
