package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrStaleVersion rejects a publication whose version does not increase.
var ErrStaleVersion = errors.New("version must increase")

// Snapshot is an immutable view of the loaded definitions. An execution pins
// the snapshot it started under and finishes against it.
type Snapshot struct {
	generation uint64
	current    map[string]*CompiledWorkflow
	history    map[string]map[int]*CompiledWorkflow
	ordered    []*CompiledWorkflow
}

// Generation increases with every publication or removal.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Get returns the current version of a workflow.
func (s *Snapshot) Get(id string) (*CompiledWorkflow, bool) {
	compiled, ok := s.current[id]

	return compiled, ok
}

// Version returns a specific published version of a workflow, including
// versions superseded or removed since.
func (s *Snapshot) Version(id string, version int) (*CompiledWorkflow, bool) {
	compiled, ok := s.history[id][version]

	return compiled, ok
}

// Workflows returns the current version of every workflow, ordered by id.
func (s *Snapshot) Workflows() []*CompiledWorkflow {
	return s.ordered
}

// ActiveCount returns the number of active workflows.
func (s *Snapshot) ActiveCount() int {
	n := 0

	for _, compiled := range s.ordered {
		if compiled.Definition.IsActive() {
			n++
		}
	}

	return n
}

func (s *Snapshot) latestVersion(id string) int {
	latest := 0
	for version := range s.history[id] {
		latest = max(latest, version)
	}

	return latest
}

// Store holds the versioned set of compiled workflows. Readers load the
// current snapshot without locking; writers serialize and swap in a copy.
type Store struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]
	logger   *slog.Logger
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	s := &Store{logger: logger.With("module", "definition_store")}
	s.snapshot.Store(&Snapshot{
		current: map[string]*CompiledWorkflow{},
		history: map[string]map[int]*CompiledWorkflow{},
	})

	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// LatestVersion returns the highest version ever published for id, zero if none.
func (s *Store) LatestVersion(id string) int {
	return s.Snapshot().latestVersion(id)
}

// Publish makes compiled the current version of its workflow. The version
// must be greater than every version published before for the same id.
func (s *Store) Publish(compiled *CompiledWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snapshot.Load()

	if latest := old.latestVersion(compiled.ID()); compiled.Version() <= latest {
		return fmt.Errorf("workflow %s version %d (latest %d): %w", compiled.ID(), compiled.Version(), latest, ErrStaleVersion)
	}

	current := maps.Clone(old.current)
	current[compiled.ID()] = compiled

	history := maps.Clone(old.history)
	versions := maps.Clone(history[compiled.ID()])

	if versions == nil {
		versions = map[int]*CompiledWorkflow{}
	}

	versions[compiled.Version()] = compiled
	history[compiled.ID()] = versions

	s.swap(old, current, history)

	s.logger.Info("Published workflow",
		"workflow_id", compiled.ID(),
		"version", compiled.Version(),
		"status", compiled.Definition.Status)

	return nil
}

// Remove drops the current version of a workflow so it no longer matches
// events. Published versions stay addressable for retries.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snapshot.Load()
	if _, ok := old.current[id]; !ok {
		return false
	}

	current := maps.Clone(old.current)
	delete(current, id)

	s.swap(old, current, old.history)

	s.logger.Info("Removed workflow", "workflow_id", id)

	return true
}

func (s *Store) swap(old *Snapshot, current map[string]*CompiledWorkflow, history map[string]map[int]*CompiledWorkflow) {
	ordered := slices.SortedFunc(maps.Values(current), func(a, b *CompiledWorkflow) int {
		return strings.Compare(a.ID(), b.ID())
	})

	s.snapshot.Store(&Snapshot{
		generation: old.generation + 1,
		current:    current,
		history:    history,
		ordered:    ordered,
	})
}
