package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// WorkflowRepository handles workflow-related database operations. Each
// version is stored as a JSONB document; workflows tracks the current one.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetAll returns the current version of every workflow not deleted.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT v.document
		FROM workflows w
		JOIN workflow_versions v ON v.workflow_id = w.id AND v.version = w.current_version
		WHERE w.deleted_at IS NULL
		ORDER BY w.id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, def)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns the current version of a workflow.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT v.document
		FROM workflows w
		JOIN workflow_versions v ON v.workflow_id = w.id AND v.version = w.current_version
		WHERE w.id = $1 AND w.deleted_at IS NULL
	`

	def, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return def, nil
}

// GetVersion returns one stored version, deleted workflows included.
func (r *WorkflowRepository) GetVersion(ctx context.Context, id string, version int) (*models.WorkflowDefinition, error) {
	query := `SELECT document FROM workflow_versions WHERE workflow_id = $1 AND version = $2`

	def, err := scanDocument(r.db.QueryRowContext(ctx, query, id, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowVersionError("GetVersion", id, version, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow version: %w", err)
	}

	return def, nil
}

// Save stores a new version and makes it current.
func (r *WorkflowRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	document, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", def.ID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, current_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			current_version = GREATEST(workflows.current_version, EXCLUDED.current_version),
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`, def.ID, def.Version, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", def.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_versions (workflow_id, version, status, entity_type, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, def.ID, def.Version, def.Status, def.Trigger.EntityType, document, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewWorkflowVersionError("Save", def.ID, def.Version, persistence.ErrWorkflowAlreadyExists)
		}

		return fmt.Errorf("failed to save workflow %s version %d: %w", def.ID, def.Version, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow %s: %w", def.ID, err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.WorkflowDefinition, error) {
	var document []byte

	if err := row.Scan(&document); err != nil {
		return nil, err
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(document, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow document: %w", err)
	}

	return &def, nil
}
