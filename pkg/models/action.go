package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Built-in action types.
const (
	ActionTypeNotification = "notification"
	ActionTypeEmail        = "email"
	ActionTypeWebhook      = "webhook"
	ActionTypeDatabase     = "database"
	ActionTypeCustom       = "custom"
	ActionTypeLog          = "log"
	ActionTypeNoop         = "noop"
)

// Action is a unit of work performed when a workflow's conditions pass.
// Config carries the type-specific settings and is decoded by the executor.
type Action struct {
	ID                 string         `json:"id"                              validate:"required"`
	Type               string         `json:"type"                            validate:"required"`
	Order              int            `json:"order"`
	Dependencies       []string       `json:"dependencies,omitempty"`
	Recipients         []Recipient    `json:"recipients,omitempty"            validate:"dive"`
	MaxExecutionTimeMs int64          `json:"max_execution_time_ms,omitempty" validate:"gte=0"`
	Config             map[string]any `json:"config,omitempty"`
}

// Timeout returns the action timeout, falling back to def when unset.
func (a Action) Timeout(def time.Duration) time.Duration {
	if a.MaxExecutionTimeMs > 0 {
		return time.Duration(a.MaxExecutionTimeMs) * time.Millisecond
	}

	return def
}

// NotificationConfig is the config view of a notification action.
type NotificationConfig struct {
	Title    string `json:"title"    validate:"required"`
	Body     string `json:"body"`
	Priority string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

// EmailConfig is the config view of an email action.
type EmailConfig struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Template string `json:"template"`
}

// WebhookConfig is the config view of a webhook action.
type WebhookConfig struct {
	URL     string            `json:"url"     validate:"required,url"`
	Method  string            `json:"method"  validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Retries uint64            `json:"retries"`
}

// DatabaseConfig is the config view of a database action.
type DatabaseConfig struct {
	Operation    string         `json:"operation"     validate:"required,oneof=insert update delete"`
	TargetEntity string         `json:"target_entity" validate:"required"`
	FieldMapping map[string]any `json:"field_mapping"`
	Filter       map[string]any `json:"filter"`
}

// CustomConfig is the config view of a custom action.
type CustomConfig struct {
	Handler string         `json:"handler" validate:"required"`
	Config  map[string]any `json:"config"`
}

// DecodeConfig converts a loosely typed action config into a typed view.
func DecodeConfig[T any](config map[string]any) (T, error) {
	var out T

	raw, err := json.Marshal(config)
	if err != nil {
		return out, fmt.Errorf("failed to encode action config: %w", err)
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode action config: %w", err)
	}

	return out, nil
}
