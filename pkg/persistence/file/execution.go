package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

// ExecutionRepository stores execution records as root/executions/<id>.json.
type ExecutionRepository struct {
	root string
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

// Save writes a record, replacing any previous copy.
func (er *ExecutionRepository) Save(_ context.Context, record *models.ExecutionRecord) error {
	if err := validateID(record.ID); err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	dir := filepath.Join(er.root, "executions")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	// Write then rename so readers never observe a partial record.
	tmp, err := os.CreateTemp(dir, record.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", record.ID, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write execution %s: %w", record.ID, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write execution %s: %w", record.ID, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, record.ID+".json")); err != nil {
		return fmt.Errorf("failed to write execution %s: %w", record.ID, err)
	}

	return nil
}

// GetByID reads one record.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	data, err := os.ReadFile(filepath.Join(er.root, "executions", id+".json")) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var record models.ExecutionRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &record, nil
}

// List scans every stored record, filters, sorts by start time and paginates in memory.
func (er *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(er.root, "executions"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		record, err := er.GetByID(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip invalid files
			continue
		}

		if opts.WorkflowID != "" && record.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != "" && record.Status != opts.Status {
			continue
		}

		records = append(records, record)
	}

	slices.SortStableFunc(records, func(a, b *models.ExecutionRecord) int {
		if opts.SortOrder == "asc" {
			return a.StartedAt.Compare(b.StartedAt)
		}

		return b.StartedAt.Compare(a.StartedAt)
	})

	total := len(records)
	start := min(opts.Offset, total)
	end := min(opts.Offset+opts.Limit, total)

	return &persistence.ExecutionListResult{
		Executions:  records[start:end],
		TotalCount:  int64(total),
		HasNextPage: end < total,
	}, nil
}
