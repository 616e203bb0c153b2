package models

import (
	"errors"
	"fmt"
)

// Engine error taxonomy.
var (
	// ErrConditionEvaluation indicates malformed or missing data while evaluating a condition.
	ErrConditionEvaluation = errors.New("condition evaluation failed")

	// ErrRecipientResolution indicates a recipient descriptor could not be resolved.
	ErrRecipientResolution = errors.New("recipient resolution failed")

	// ErrRegistryLookup indicates no implementation is registered for a type string.
	ErrRegistryLookup = errors.New("registry lookup failed")

	// ErrActionExecution indicates an executor-level failure, transport errors included.
	ErrActionExecution = errors.New("action execution failed")

	// ErrTimeout indicates an action or execution exceeded its time budget.
	ErrTimeout = errors.New("timeout")

	// ErrDefinition indicates an invalid workflow definition.
	ErrDefinition = errors.New("invalid workflow definition")

	// ErrPoolSaturated indicates the execution worker pool cannot accept more work.
	ErrPoolSaturated = errors.New("execution pool saturated")
)

// ErrorKind classifies an action failure on its result.
type ErrorKind string

const (
	ErrorKindRegistryLookup     ErrorKind = "registry_lookup"
	ErrorKindActionExecution    ErrorKind = "action_execution"
	ErrorKindTimeout            ErrorKind = "timeout"
	ErrorKindDependencySkipped  ErrorKind = "dependency_not_satisfied"
	ErrorKindRecipientResolving ErrorKind = "recipient_resolution"
)

// KindOf maps an error onto its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return ErrorKindTimeout
	case errors.Is(err, ErrRegistryLookup):
		return ErrorKindRegistryLookup
	case errors.Is(err, ErrRecipientResolution):
		return ErrorKindRecipientResolving
	default:
		return ErrorKindActionExecution
	}
}

// DefinitionError rejects a workflow definition at load time.
type DefinitionError struct {
	WorkflowID string
	Reason     string
	Err        error
}

func (e *DefinitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow %s: %s: %v", e.WorkflowID, e.Reason, e.Err)
	}

	return fmt.Sprintf("workflow %s: %s", e.WorkflowID, e.Reason)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// Is matches ErrDefinition as well as the wrapped error.
func (e *DefinitionError) Is(target error) bool {
	return target == ErrDefinition || errors.Is(e.Err, target)
}

// NewDefinitionError creates a definition error for a workflow.
func NewDefinitionError(workflowID, reason string) *DefinitionError {
	return &DefinitionError{WorkflowID: workflowID, Reason: reason}
}

// RegistryLookupError reports an unknown (kind, type) pair.
type RegistryLookupError struct {
	Kind     string
	TypeName string
}

func (e *RegistryLookupError) Error() string {
	return fmt.Sprintf("%s type '%s' not registered", e.Kind, e.TypeName)
}

func (e *RegistryLookupError) Is(target error) bool {
	return target == ErrRegistryLookup
}

// ActionError wraps a failure of a single action.
type ActionError struct {
	ActionID string
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s: %v", e.ActionID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Is matches ErrActionExecution as well as the wrapped error.
func (e *ActionError) Is(target error) bool {
	return target == ErrActionExecution || errors.Is(e.Err, target)
}

// NewActionError creates an action error.
func NewActionError(actionID string, err error) *ActionError {
	return &ActionError{ActionID: actionID, Err: err}
}

// IsDefinitionError checks if an error is a definition-time rejection.
func IsDefinitionError(err error) bool {
	return errors.Is(err, ErrDefinition)
}

// IsRegistryLookup checks if an error indicates an unknown type.
func IsRegistryLookup(err error) bool {
	return errors.Is(err, ErrRegistryLookup)
}

// IsTimeout checks if an error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsPoolSaturated checks if an error indicates the worker pool rejected work.
func IsPoolSaturated(err error) bool {
	return errors.Is(err, ErrPoolSaturated)
}
