package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

const deletedMarker = "deleted"

// WorkflowRepository stores definitions as root/workflows/<id>/<version>.json.
// A deleted workflow keeps its version files next to a marker file.
type WorkflowRepository struct {
	root string
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir(id string) string {
	return filepath.Join(wr.root, "workflows", id)
}

// GetAll returns the latest version of every workflow not deleted, ordered by id.
func (wr *WorkflowRepository) GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	entries, err := os.ReadDir(filepath.Join(wr.root, "workflows"))
	if err != nil {
		if os.IsNotExist(err) {
			return make([]*models.WorkflowDefinition, 0), nil
		}

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		def, err := wr.GetByID(ctx, entry.Name())
		if persistence.IsWorkflowNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		workflows = append(workflows, def)
	}

	return workflows, nil
}

// GetByID returns the latest version of a workflow.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if _, err := os.Stat(filepath.Join(wr.dir(id), deletedMarker)); err == nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	versions, err := wr.versions(id)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if len(versions) == 0 {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return wr.GetVersion(ctx, id, versions[len(versions)-1])
}

// GetVersion returns one stored version of a workflow.
func (wr *WorkflowRepository) GetVersion(_ context.Context, id string, version int) (*models.WorkflowDefinition, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewWorkflowError("GetVersion", id, err)
	}

	body, err := os.ReadFile(filepath.Join(wr.dir(id), strconv.Itoa(version)+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowVersionError("GetVersion", id, version, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s version %d: %w", id, version, err)
	}

	var def models.WorkflowDefinition

	err = json.Unmarshal(body, &def)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s version %d: %w", id, version, err)
	}

	return &def, nil
}

// Save writes a new version and clears a previous deletion.
func (wr *WorkflowRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	if err := validateID(def.ID); err != nil {
		return persistence.NewWorkflowError("Save", def.ID, err)
	}

	dir := wr.dir(def.ID)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create workflow directory: %w", err)
	}

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", def.ID, err)
	}

	filePath := filepath.Join(dir, strconv.Itoa(def.Version)+".json")

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return persistence.NewWorkflowVersionError("Save", def.ID, def.Version, persistence.ErrWorkflowAlreadyExists)
		}

		return fmt.Errorf("failed to create workflow %s: %w", def.ID, err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", def.ID, err)
	}

	err = os.Remove(filepath.Join(dir, deletedMarker))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to restore workflow %s: %w", def.ID, err)
	}

	return nil
}

// Delete marks a workflow as deleted.
func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	if _, err := wr.GetByID(ctx, id); err != nil {
		return err
	}

	err := os.WriteFile(filepath.Join(wr.dir(id), deletedMarker), []byte(time.Now().UTC().Format(time.RFC3339)), 0600)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}

// versions returns the stored versions of a workflow in ascending order.
func (wr *WorkflowRepository) versions(id string) ([]int, error) {
	files, err := fs.Glob(os.DirFS(wr.dir(id)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow versions: %w", err)
	}

	versions := make([]int, 0, len(files))

	for _, name := range files {
		version, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}

		versions = append(versions, version)
	}

	slices.Sort(versions)

	return versions, nil
}
