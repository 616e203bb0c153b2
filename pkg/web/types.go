// Package web provides HTTP request and response types for the rule engine API.
package web

import "github.com/dukex/ruleflow/pkg/models"

// WorkflowListResponse is the body of GET /workflows.
type WorkflowListResponse struct {
	Workflows  []*models.WorkflowDefinition `json:"workflows"`
	TotalCount int                          `json:"total_count"`
}

// EventResponse reports the executions an inbound event produced.
type EventResponse struct {
	EventID    string                    `json:"event_id"`
	Executions []*models.ExecutionRecord `json:"executions"`
}

// RetryResponse carries the updated record and the new action result.
type RetryResponse struct {
	Execution *models.ExecutionRecord `json:"execution"`
	Result    models.ActionResult     `json:"result"`
}

// RegistryResponse lists the registered type names per kind.
type RegistryResponse struct {
	Conditions   []string `json:"conditions"`
	Actions      []string `json:"actions"`
	Recipients   []string `json:"recipients"`
	Replacements int64    `json:"replacements"`
}
