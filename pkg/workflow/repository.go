package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/google/uuid"
)

// Repository keeps the persisted definitions and the in-memory store in step:
// definitions are compiled before they are saved, and published to the store
// only once saved.
type Repository struct {
	persistence persistence.Persistence
	store       *Store
	compiler    *Compiler
	logger      *slog.Logger
}

// NewRepository creates a repository over persistence feeding store.
func NewRepository(persistence persistence.Persistence, store *Store, compiler *Compiler, logger *slog.Logger) *Repository {
	return &Repository{
		persistence: persistence,
		store:       store,
		compiler:    compiler,
		logger:      logger.With("module", "workflow_repository"),
	}
}

// HealthCheck reports whether the persistence layer is reachable.
func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Load compiles every persisted definition and publishes it to the store.
// Definitions that fail to compile are rejected and returned as errors; they
// never reach the store. Loaded workflows no longer persisted are removed, so
// Load can be called repeatedly to follow changes made by other processes.
func (r *Repository) Load(ctx context.Context) (int, error) {
	defs, err := r.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load workflows: %w", err)
	}

	var (
		loaded   int
		rejected []error
		seen     = make(map[string]struct{}, len(defs))
	)

	for _, def := range defs {
		seen[def.ID] = struct{}{}

		compiled, err := r.compiler.Compile(def)
		if err != nil {
			r.logger.ErrorContext(ctx, "Rejected workflow definition", "workflow_id", def.ID, "error", err)
			rejected = append(rejected, err)

			continue
		}

		if current, ok := r.store.Snapshot().Get(def.ID); ok && current.Version() >= def.Version {
			continue
		}

		if err := r.store.Publish(compiled); err != nil {
			rejected = append(rejected, err)

			continue
		}

		loaded++
	}

	for _, current := range r.store.Snapshot().Workflows() {
		if _, ok := seen[current.ID()]; !ok {
			r.store.Remove(current.ID())
		}
	}

	r.logger.InfoContext(ctx, "Loaded workflow definitions", "loaded", loaded, "rejected", len(rejected))

	return loaded, errors.Join(rejected...)
}

// Publish validates def, persists it as a new version and makes it current.
// A zero version is assigned the next version number; an explicit version
// must be greater than any published before.
func (r *Repository) Publish(ctx context.Context, def *models.WorkflowDefinition) (*CompiledWorkflow, error) {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	if def.Version == 0 {
		def.Version = r.store.LatestVersion(def.ID) + 1
	}

	if def.Status == "" {
		def.Status = models.WorkflowStatusDraft
	}

	if latest := r.store.LatestVersion(def.ID); def.Version <= latest {
		return nil, fmt.Errorf("workflow %s version %d (latest %d): %w", def.ID, def.Version, latest, ErrStaleVersion)
	}

	if _, err := r.compiler.Compile(def); err != nil {
		return nil, err
	}

	if err := r.persistence.WorkflowRepository().Save(ctx, def); err != nil {
		return nil, err
	}

	// Compile again so the stored timestamps are part of the frozen copy.
	compiled, err := r.compiler.Compile(def)
	if err != nil {
		return nil, err
	}

	if err := r.store.Publish(compiled); err != nil {
		return nil, err
	}

	return compiled, nil
}

// FetchAll returns the current version of every loaded workflow.
func (r *Repository) FetchAll() []*models.WorkflowDefinition {
	compiled := r.store.Snapshot().Workflows()

	defs := make([]*models.WorkflowDefinition, 0, len(compiled))
	for _, c := range compiled {
		defs = append(defs, c.Definition)
	}

	return defs
}

// FetchByID returns the current version of a loaded workflow.
func (r *Repository) FetchByID(id string) (*models.WorkflowDefinition, error) {
	compiled, ok := r.store.Snapshot().Get(id)
	if !ok {
		return nil, persistence.NewWorkflowError("FetchByID", id, persistence.ErrWorkflowNotFound)
	}

	return compiled.Definition, nil
}

// Delete removes a workflow from persistence and from matching.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.persistence.WorkflowRepository().Delete(ctx, id); err != nil {
		return err
	}

	r.store.Remove(id)

	return nil
}

// Version returns a specific published version, reading it back from
// persistence when it is not held in memory (for example after a restart).
func (r *Repository) Version(ctx context.Context, id string, version int) (*CompiledWorkflow, error) {
	if compiled, ok := r.store.Snapshot().Version(id, version); ok {
		return compiled, nil
	}

	def, err := r.persistence.WorkflowRepository().GetVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}

	return r.compiler.Compile(def)
}
