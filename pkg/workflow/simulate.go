package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/google/uuid"
)

// ErrWorkflowNotLoaded is returned when a named workflow is not in the store.
var ErrWorkflowNotLoaded = errors.New("workflow not loaded")

// SimulationRequest describes a synthetic event for one workflow.
type SimulationRequest struct {
	Operation     models.Operation `json:"operation"      validate:"required,oneof=create update delete schedule"`
	EntityID      string           `json:"entity_id"`
	EntityData    map[string]any   `json:"entity_data"`
	ChangedFields []string         `json:"changed_fields,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at,omitzero"`
}

// SimulationResponse reports what a real execution would have done.
type SimulationResponse struct {
	ExecutionID     string                 `json:"execution_id"`
	WorkflowID      string                 `json:"workflow_id"`
	WorkflowVersion int                    `json:"workflow_version"`
	TriggerMatched  bool                   `json:"trigger_matched"`
	Conditions      []models.TraceNode     `json:"conditions"`
	Actions         []models.ActionResult  `json:"actions"`
	OverallStatus   models.ExecutionStatus `json:"overall_status"`
}

// Simulate runs the current version of a workflow against a synthetic event
// with every executor replaced by a no-op. Draft and inactive workflows can be
// simulated. Nothing is persisted or published.
func (c *Coordinator) Simulate(ctx context.Context, workflowID string, req SimulationRequest) (*SimulationResponse, error) {
	compiled, ok := c.store.Snapshot().Get(workflowID)
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotLoaded)
	}

	event := models.Event{
		ID:            uuid.New().String(),
		EntityType:    compiled.Definition.Trigger.EntityType,
		Operation:     req.Operation,
		EntityID:      req.EntityID,
		EntityData:    req.EntityData,
		ChangedFields: req.ChangedFields,
		OccurredAt:    req.OccurredAt,
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}

	if req.Operation == models.OperationSchedule {
		event.WorkflowID = workflowID
	}

	record := c.execute(ctx, compiled, event, true)

	return &SimulationResponse{
		ExecutionID:     record.ID,
		WorkflowID:      record.WorkflowID,
		WorkflowVersion: record.WorkflowVersion,
		TriggerMatched:  TriggerMatches(compiled.Definition, event),
		Conditions:      record.ConditionTrace,
		Actions:         record.ActionResults,
		OverallStatus:   record.Status,
	}, nil
}
