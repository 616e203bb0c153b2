package models

import "time"

// Event is an inbound entity lifecycle change or a scheduler tick.
type Event struct {
	ID            string         `json:"id,omitempty"`
	EntityType    string         `json:"entity_type"              validate:"required"`
	Operation     Operation      `json:"operation"                validate:"required,oneof=create update delete schedule"`
	EntityID      string         `json:"entity_id"`
	EntityData    map[string]any `json:"entity_data"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`

	// WorkflowID scopes a schedule tick to a single workflow.
	WorkflowID string `json:"workflow_id,omitempty"`
}

// Snapshot captures the trigger-relevant part of an event for an execution record.
func (e Event) Snapshot() TriggerSnapshot {
	return TriggerSnapshot{
		EventID:       e.ID,
		EntityType:    e.EntityType,
		Operation:     e.Operation,
		EntityID:      e.EntityID,
		EntityData:    CloneData(e.EntityData),
		ChangedFields: append([]string(nil), e.ChangedFields...),
		OccurredAt:    e.OccurredAt,
	}
}

// TriggerSnapshot is the copy of the triggering event stored on an execution record.
type TriggerSnapshot struct {
	EventID       string         `json:"event_id,omitempty"`
	EntityType    string         `json:"entity_type"`
	Operation     Operation      `json:"operation"`
	EntityID      string         `json:"entity_id"`
	EntityData    map[string]any `json:"entity_data"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Event rebuilds the triggering event from the snapshot.
func (s TriggerSnapshot) Event() Event {
	return Event{
		ID:            s.EventID,
		EntityType:    s.EntityType,
		Operation:     s.Operation,
		EntityID:      s.EntityID,
		EntityData:    CloneData(s.EntityData),
		ChangedFields: append([]string(nil), s.ChangedFields...),
		OccurredAt:    s.OccurredAt,
	}
}

// CloneData deep-copies nested maps and slices of a JSON-shaped value tree.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneData(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return val
	}
}
