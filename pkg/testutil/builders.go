// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestAction creates a test Action with default values that can be overridden.
func CreateTestAction(overrides ...func(*models.Action)) models.Action {
	action := models.Action{
		ID:     "notify",
		Type:   models.ActionTypeNotification,
		Config: map[string]any{"title": "Order {{ .entity_id }}", "body": "total {{ .entity.total }}"},
	}

	for _, override := range overrides {
		override(&action)
	}

	return action
}

// WithActionID sets the action ID.
func WithActionID(id string) func(*models.Action) {
	return func(a *models.Action) {
		a.ID = id
	}
}

// WithActionType sets the action type.
func WithActionType(actionType string) func(*models.Action) {
	return func(a *models.Action) {
		a.Type = actionType
	}
}

// WithDependencies sets the action dependencies.
func WithDependencies(ids ...string) func(*models.Action) {
	return func(a *models.Action) {
		a.Dependencies = ids
	}
}

// WithRecipients sets the action recipients.
func WithRecipients(recipients ...models.Recipient) func(*models.Action) {
	return func(a *models.Action) {
		a.Recipients = recipients
	}
}

// WithActionConfig sets the action configuration.
func WithActionConfig(config map[string]any) func(*models.Action) {
	return func(a *models.Action) {
		a.Config = config
	}
}

// CreateTestDefinition creates an active order workflow: trigger on order
// creation, condition total > 100, one notification to the sales managers.
func CreateTestDefinition(overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	def := &models.WorkflowDefinition{
		ID:      "wf-" + uuid.New().String()[:8],
		Name:    "High value orders",
		Status:  models.WorkflowStatusActive,
		Version: 1,
		Trigger: models.Trigger{
			EntityType: "order",
			Operations: []models.Operation{models.OperationCreate},
		},
		Conditions: []models.Condition{
			models.FieldCondition("total", models.OperatorGt, "100"),
		},
		Actions: []models.Action{
			CreateTestAction(WithRecipients(models.RoleRecipient("sales_manager"))),
		},
	}

	for _, override := range overrides {
		override(def)
	}

	return def
}

// WithDefinitionID sets the workflow ID.
func WithDefinitionID(id string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.ID = id
	}
}

// WithVersion sets the workflow version.
func WithVersion(version int) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Version = version
	}
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Status = status
	}
}

// WithTrigger sets the workflow trigger.
func WithTrigger(entityType string, operations ...models.Operation) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Trigger.EntityType = entityType
		d.Trigger.Operations = operations
	}
}

// WithFieldTriggers sets the fields whose change triggers an update.
func WithFieldTriggers(fields ...string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Trigger.FieldTriggers = fields
	}
}

// WithSchedule sets the workflow schedule.
func WithSchedule(schedule string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Trigger.Schedule = schedule
	}
}

// WithConditions replaces the workflow conditions.
func WithConditions(conditions ...models.Condition) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Conditions = conditions
	}
}

// WithActions replaces the workflow actions.
func WithActions(actions ...models.Action) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Actions = actions
	}
}

// WithSequential forces sequential action execution.
func WithSequential() func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.ExecutionStrategy = models.ExecutionStrategySequential
	}
}

// WithMaxExecutionTime sets the execution ceiling.
func WithMaxExecutionTime(d time.Duration) func(*models.WorkflowDefinition) {
	return func(def *models.WorkflowDefinition) {
		def.MaxExecutionTimeMs = d.Milliseconds()
	}
}

// CreateTestEvent creates an order creation event with the given data.
func CreateTestEvent(data map[string]any, overrides ...func(*models.Event)) models.Event {
	event := models.Event{
		ID:         uuid.New().String(),
		EntityType: "order",
		Operation:  models.OperationCreate,
		EntityID:   "order-1",
		EntityData: data,
		OccurredAt: time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC),
	}

	for _, override := range overrides {
		override(&event)
	}

	return event
}

// WithOperation sets the event operation.
func WithOperation(op models.Operation) func(*models.Event) {
	return func(e *models.Event) {
		e.Operation = op
	}
}

// WithChangedFields sets the changed fields of an update event.
func WithChangedFields(fields ...string) func(*models.Event) {
	return func(e *models.Event) {
		e.ChangedFields = fields
	}
}

// WithEntityType sets the event entity type.
func WithEntityType(entityType string) func(*models.Event) {
	return func(e *models.Event) {
		e.EntityType = entityType
	}
}

// CreateTestRecord creates a finalized execution record with the given results.
func CreateTestRecord(workflowID string, results ...models.ActionResult) *models.ExecutionRecord {
	started := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)

	return &models.ExecutionRecord{
		ID:              uuid.New().String(),
		WorkflowID:      workflowID,
		WorkflowVersion: 1,
		Trigger:         CreateTestEvent(map[string]any{"total": 150}).Snapshot(),
		ActionResults:   results,
		Status:          models.Aggregate(results),
		StartedAt:       started,
		CompletedAt:     started.Add(time.Second),
	}
}
