package models

import "slices"

// Operation is an entity lifecycle operation carried by an event.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"

	// OperationSchedule marks a tick emitted by the scheduler for a single workflow.
	OperationSchedule Operation = "schedule"
)

// Trigger is the entity-type/operation filter that makes a workflow eligible for an event.
type Trigger struct {
	EntityType    string      `json:"entity_type"              validate:"required"`
	Operations    []Operation `json:"operations"               validate:"required,min=1,dive,oneof=create update delete"`
	FieldTriggers []string    `json:"field_triggers,omitempty"`
	Schedule      string      `json:"schedule,omitempty"`
}

// HasOperation reports whether op is one of the trigger operations.
func (t Trigger) HasOperation(op Operation) bool {
	return slices.Contains(t.Operations, op)
}

// WatchesAny reports whether any of the changed fields is a field trigger.
func (t Trigger) WatchesAny(changed []string) bool {
	for _, field := range changed {
		if slices.Contains(t.FieldTriggers, field) {
			return true
		}
	}

	return false
}
