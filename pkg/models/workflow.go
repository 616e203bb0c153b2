// Package models defines the core domain models for reactive workflow rules.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, never matched
	WorkflowStatusActive   WorkflowStatus = "active"   // Matched against incoming events
	WorkflowStatusInactive WorkflowStatus = "inactive" // Retained for history, never matched
)

// ExecutionStrategy controls how independent actions of one execution are scheduled.
type ExecutionStrategy string

const (
	ExecutionStrategyParallel   ExecutionStrategy = "parallel"
	ExecutionStrategySequential ExecutionStrategy = "sequential"
)

// WorkflowDefinition is a named, versioned automation rule: trigger + conditions + actions.
// A definition is immutable once published; edits produce a new version.
type WorkflowDefinition struct {
	ID                 string            `json:"id"                              validate:"required"`
	Name               string            `json:"name"                            validate:"required,min=3"`
	Description        string            `json:"description,omitempty"`
	Status             WorkflowStatus    `json:"status"                          validate:"required,oneof=draft active inactive"`
	Version            int               `json:"version"                         validate:"gte=1"`
	Trigger            Trigger           `json:"trigger"`
	Conditions         []Condition       `json:"conditions,omitempty"`
	Actions            []Action          `json:"actions,omitempty"               validate:"dive"`
	ExecutionStrategy  ExecutionStrategy `json:"execution_strategy,omitempty"    validate:"omitempty,oneof=parallel sequential"`
	MaxExecutionTimeMs int64             `json:"max_execution_time_ms,omitempty" validate:"gte=0"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// IsActive reports whether the definition takes part in trigger matching.
func (w *WorkflowDefinition) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// IsSequential reports whether actions must run one at a time.
func (w *WorkflowDefinition) IsSequential() bool {
	return w.ExecutionStrategy == ExecutionStrategySequential
}

// MaxExecutionTime returns the per-definition execution ceiling, zero when unset.
func (w *WorkflowDefinition) MaxExecutionTime() time.Duration {
	return time.Duration(w.MaxExecutionTimeMs) * time.Millisecond
}
