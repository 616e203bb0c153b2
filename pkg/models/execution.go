package models

import "time"

// ExecutionStatus is the state of one execution of one workflow against one event.
type ExecutionStatus string

const (
	ExecutionStatusPending              ExecutionStatus = "pending"
	ExecutionStatusEvaluatingConditions ExecutionStatus = "evaluating_conditions"
	ExecutionStatusDispatchingActions   ExecutionStatus = "dispatching_actions"
	ExecutionStatusSkipped              ExecutionStatus = "skipped"
	ExecutionStatusSuccess              ExecutionStatus = "success"
	ExecutionStatusPartial              ExecutionStatus = "partial"
	ExecutionStatusFailure              ExecutionStatus = "failure"
)

// IsTerminal reports whether no further transition is possible.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSkipped, ExecutionStatusSuccess, ExecutionStatusPartial, ExecutionStatusFailure:
		return true
	default:
		return false
	}
}

// ActionStatus is the outcome of a single action attempt.
type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "success"
	ActionStatusFailure ActionStatus = "failure"
	ActionStatusSkipped ActionStatus = "skipped"
)

// ActionResult is the outcome of one attempt of one action.
type ActionResult struct {
	ID          string       `json:"id"`
	ActionID    string       `json:"action_id"`
	ActionType  string       `json:"action_type"`
	Status      ActionStatus `json:"status"`
	Recipients  []Identity   `json:"recipients,omitempty"`
	Output      any          `json:"output,omitempty"`
	Error       string       `json:"error,omitempty"`
	ErrorKind   ErrorKind    `json:"error_kind,omitempty"`
	Notes       []string     `json:"notes,omitempty"`
	Attempt     int          `json:"attempt"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	RetryOf     string       `json:"retry_of,omitempty"`
}

// ExecutionRecord is the audit trail of one execution. It is append-only once
// finalized; retries append action results.
type ExecutionRecord struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflow_id"`
	WorkflowVersion int             `json:"workflow_version"`
	Trigger         TriggerSnapshot `json:"trigger"`
	ConditionTrace  []TraceNode     `json:"condition_trace"`
	ActionResults   []ActionResult  `json:"action_results"`
	Status          ExecutionStatus `json:"status"`
	Error           string          `json:"error,omitempty"`
	DryRun          bool            `json:"dry_run,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     time.Time       `json:"completed_at,omitzero"`
}

// LatestResult returns the most recent result recorded for an action.
func (r *ExecutionRecord) LatestResult(actionID string) (ActionResult, bool) {
	for i := len(r.ActionResults) - 1; i >= 0; i-- {
		if r.ActionResults[i].ActionID == actionID {
			return r.ActionResults[i], true
		}
	}

	return ActionResult{}, false
}

// LatestResults returns the most recent result per action, in first-recorded order.
func LatestResults(results []ActionResult) []ActionResult {
	index := make(map[string]int, len(results))
	latest := make([]ActionResult, 0, len(results))

	for _, result := range results {
		if i, ok := index[result.ActionID]; ok {
			latest[i] = result

			continue
		}

		index[result.ActionID] = len(latest)
		latest = append(latest, result)
	}

	return latest
}

// Aggregate derives the overall execution status from per-action results.
// Only the latest attempt of each action counts.
func Aggregate(results []ActionResult) ExecutionStatus {
	var succeeded, unsucceeded int

	for _, result := range LatestResults(results) {
		if result.Status == ActionStatusSuccess {
			succeeded++
		} else {
			unsucceeded++
		}
	}

	switch {
	case unsucceeded == 0:
		return ExecutionStatusSuccess
	case succeeded > 0:
		return ExecutionStatusPartial
	default:
		return ExecutionStatusFailure
	}
}
