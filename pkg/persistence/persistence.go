// Package persistence provides the storage abstraction for workflow definitions
// and execution records.
package persistence

import (
	"context"

	"github.com/dukex/ruleflow/pkg/models"
)

// Persistence groups the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores every published version of every definition.
type WorkflowRepository interface {
	// GetAll returns the latest version of every workflow not deleted.
	GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error)

	// GetByID returns the latest version of a workflow not deleted.
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)

	// GetVersion returns a specific version, deleted workflows included.
	GetVersion(ctx context.Context, id string, version int) (*models.WorkflowDefinition, error)

	// Save stores a new version. Saving an existing (id, version) pair fails
	// with ErrWorkflowAlreadyExists.
	Save(ctx context.Context, def *models.WorkflowDefinition) error

	// Delete soft-deletes a workflow; its versions remain readable by GetVersion.
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records.
type ExecutionRepository interface {
	// Save inserts or replaces a record.
	Save(ctx context.Context, record *models.ExecutionRecord) error

	GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error)

	// List returns records ordered by start time.
	List(ctx context.Context, opts ListExecutionsOptions) (*ExecutionListResult, error)
}

// ListExecutionsOptions filters and paginates execution listings.
type ListExecutionsOptions struct {
	WorkflowID string
	Status     models.ExecutionStatus
	Limit      int
	Offset     int
	SortOrder  string // "asc" or "desc"
}

// Normalize applies defaults and bounds.
func (o ListExecutionsOptions) Normalize() (ListExecutionsOptions, error) {
	if o.Limit <= 0 || o.Limit > 100 {
		o.Limit = 20
	}

	if o.Offset < 0 {
		o.Offset = 0
	}

	switch o.SortOrder {
	case "":
		o.SortOrder = "desc"
	case "asc", "desc":
	default:
		return o, ErrInvalidSortOrder
	}

	return o, nil
}

// ExecutionListResult is one page of execution records.
type ExecutionListResult struct {
	Executions  []*models.ExecutionRecord `json:"executions"`
	TotalCount  int64                     `json:"total_count"`
	HasNextPage bool                      `json:"has_next_page"`
}
