package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

// ExecutionRepository stores execution records as JSONB with indexed columns
// for listing.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Save inserts a record or replaces it.
func (r *ExecutionRepository) Save(ctx context.Context, record *models.ExecutionRecord) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	var completedAt sql.NullTime
	if !record.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: record.CompletedAt, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, workflow_version, status, dry_run, record, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			record = EXCLUDED.record,
			completed_at = EXCLUDED.completed_at
	`, record.ID, record.WorkflowID, record.WorkflowVersion, record.Status, record.DryRun, document, record.StartedAt, completedAt)
	if err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	return nil
}

// GetByID reads one record.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	record, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT record FROM executions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return record, nil
}

// List filters and paginates records in the database.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	where := `WHERE ($1 = '' OR workflow_id = $1) AND ($2 = '' OR status = $2)`

	var total int64

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions `+where, opts.WorkflowID, string(opts.Status)).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	// opts.SortOrder is normalized to asc or desc above.
	query := `SELECT record FROM executions ` + where + ` ORDER BY started_at ` + opts.SortOrder + ` LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, opts.WorkflowID, string(opts.Status), opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.ExecutionRecord, 0, opts.Limit)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return &persistence.ExecutionListResult{
		Executions:  records,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(records)) < total,
	}, nil
}

func scanRecord(row scanner) (*models.ExecutionRecord, error) {
	var document []byte

	if err := row.Scan(&document); err != nil {
		return nil, err
	}

	var record models.ExecutionRecord
	if err := json.Unmarshal(document, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution record: %w", err)
	}

	return &record, nil
}
