package workflow

import (
	"log/slog"

	"github.com/dukex/ruleflow/pkg/models"
)

// TriggerMatcher filters loaded workflows down to those an event triggers.
type TriggerMatcher struct {
	logger *slog.Logger
}

// NewTriggerMatcher creates a new trigger matcher.
func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// Match returns the active workflows of snapshot triggered by event, ordered
// by workflow id. It has no side effects.
func (tm *TriggerMatcher) Match(snapshot *Snapshot, event models.Event) []*CompiledWorkflow {
	var matches []*CompiledWorkflow

	tm.logger.Debug("Matching event against workflows",
		"entity_type", event.EntityType,
		"operation", event.Operation,
		"workflows_count", len(snapshot.Workflows()))

	for _, compiled := range snapshot.Workflows() {
		if !Matches(compiled.Definition, event) {
			continue
		}

		matches = append(matches, compiled)

		tm.logger.Debug("Found matching workflow",
			"workflow_id", compiled.ID(),
			"workflow_name", compiled.Definition.Name,
			"version", compiled.Version())
	}

	tm.logger.Debug("Completed trigger matching",
		"entity_type", event.EntityType,
		"operation", event.Operation,
		"matches_found", len(matches))

	return matches
}

// Matches reports whether def is triggered by event. Only active definitions
// are triggered.
func Matches(def *models.WorkflowDefinition, event models.Event) bool {
	return def.IsActive() && TriggerMatches(def, event)
}

// TriggerMatches reports whether the trigger of def fits event regardless of
// status. An entity event fits when the entity type and operation match and,
// for updates with field triggers, at least one watched field changed. A
// schedule tick fits only the scheduled workflow it names.
func TriggerMatches(def *models.WorkflowDefinition, event models.Event) bool {
	if event.Operation == models.OperationSchedule {
		return def.Trigger.Schedule != "" && event.WorkflowID == def.ID
	}

	if def.Trigger.EntityType != event.EntityType || !def.Trigger.HasOperation(event.Operation) {
		return false
	}

	if len(def.Trigger.FieldTriggers) > 0 && event.Operation == models.OperationUpdate {
		return def.Trigger.WatchesAny(event.ChangedFields)
	}

	return true
}
