package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/ruleflow/pkg/dispatch"
	"github.com/dukex/ruleflow/pkg/models"
)

var (
	// ErrActionNotFound is returned when a retry names an action the execution never ran.
	ErrActionNotFound = errors.New("action not found in execution")
	// ErrNotRetryable is returned when the named action cannot be retried.
	ErrNotRetryable = errors.New("action not retryable")
	// ErrRetryUnavailable is returned when no record store is configured.
	ErrRetryUnavailable = errors.New("retry requires a record store")
)

// RetryCommand names one action of one finalized execution.
type RetryCommand struct {
	ExecutionID string `json:"execution_id" validate:"required"`
	ActionID    string `json:"action_id"    validate:"required"`
}

// Retry re-invokes a single failed or skipped action of a finalized execution
// with the entity snapshot captured on the record. Conditions are not
// re-evaluated and no other action runs. The new result is appended to the
// same record with RetryOf set, and the overall status is recomputed.
//
// Every dependency of the action must have succeeded on the record; a
// dependent skipped because of a failed dependency is retried only after
// that dependency has been retried successfully.
//
// The action definition comes from the version the execution ran under; if
// that version can no longer be read the current version of the workflow is
// used.
func (c *Coordinator) Retry(ctx context.Context, cmd RetryCommand) (*models.ExecutionRecord, models.ActionResult, error) {
	if c.records == nil {
		return nil, models.ActionResult{}, ErrRetryUnavailable
	}

	unlock := c.retryLocks.Lock(cmd.ExecutionID)
	defer unlock()

	record, err := c.records.GetByID(ctx, cmd.ExecutionID)
	if err != nil {
		return nil, models.ActionResult{}, err
	}

	if record.DryRun || !record.Status.IsTerminal() {
		return nil, models.ActionResult{}, fmt.Errorf("execution %s is %s: %w", record.ID, record.Status, ErrNotRetryable)
	}

	previous, ok := record.LatestResult(cmd.ActionID)
	if !ok {
		return nil, models.ActionResult{}, fmt.Errorf("execution %s action %s: %w", record.ID, cmd.ActionID, ErrActionNotFound)
	}

	if previous.Status == models.ActionStatusSuccess {
		return nil, models.ActionResult{}, fmt.Errorf("execution %s action %s already succeeded: %w", record.ID, cmd.ActionID, ErrNotRetryable)
	}

	compiled, err := c.pinnedVersion(ctx, record)
	if err != nil {
		return nil, models.ActionResult{}, err
	}

	action, ok := compiled.Plan.Action(cmd.ActionID)
	if !ok {
		return nil, models.ActionResult{}, fmt.Errorf("workflow %s no longer defines action %s: %w", compiled, cmd.ActionID, ErrActionNotFound)
	}

	for _, dep := range action.Dependencies {
		if latest, ok := record.LatestResult(dep); !ok || latest.Status != models.ActionStatusSuccess {
			return nil, models.ActionResult{}, fmt.Errorf("execution %s action %s depends on %s, which has not succeeded: %w",
				record.ID, cmd.ActionID, dep, ErrNotRetryable)
		}
	}

	attempt := 1
	for _, result := range record.ActionResults {
		if result.ActionID == cmd.ActionID {
			attempt = max(attempt, result.Attempt+1)
		}
	}

	result := c.actions.RunAction(ctx, action, dispatch.Request{
		ExecutionID:     record.ID,
		WorkflowID:      record.WorkflowID,
		WorkflowVersion: record.WorkflowVersion,
		Trigger:         record.Trigger,
	}, attempt)
	result.RetryOf = previous.ID

	updated := *record
	updated.ActionResults = append(slices.Clone(record.ActionResults), result)
	updated.Status = models.Aggregate(updated.ActionResults)

	if err := c.records.Save(context.WithoutCancel(ctx), &updated); err != nil {
		return nil, models.ActionResult{}, fmt.Errorf("failed to save retried execution %s: %w", record.ID, err)
	}

	if c.recorder != nil {
		c.recorder.RecordRetry(result)
	}

	if c.publisher != nil {
		if err := c.publisher.PublishExecution(context.WithoutCancel(ctx), &updated); err != nil {
			c.logger.ErrorContext(ctx, "Failed to publish retried execution", "execution_id", record.ID, "error", err)
		}
	}

	c.logger.InfoContext(ctx, "Action retried",
		"execution_id", record.ID,
		"action_id", cmd.ActionID,
		"attempt", attempt,
		"status", result.Status,
		"execution_status", updated.Status)

	return &updated, result, nil
}

func (c *Coordinator) pinnedVersion(ctx context.Context, record *models.ExecutionRecord) (*CompiledWorkflow, error) {
	snapshot := c.store.Snapshot()

	if compiled, ok := snapshot.Version(record.WorkflowID, record.WorkflowVersion); ok {
		return compiled, nil
	}

	if c.versions != nil {
		compiled, err := c.versions.Version(ctx, record.WorkflowID, record.WorkflowVersion)
		if err == nil {
			return compiled, nil
		}

		c.logger.WarnContext(ctx, "Pinned workflow version unavailable, using current",
			"workflow_id", record.WorkflowID,
			"version", record.WorkflowVersion,
			"error", err)
	}

	if compiled, ok := snapshot.Get(record.WorkflowID); ok {
		return compiled, nil
	}

	return nil, fmt.Errorf("workflow %s: %w", record.WorkflowID, ErrWorkflowNotLoaded)
}
