// Package sqlbase provides schema migrations for SQL persistence backends.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// migrationLockKey serialises migrations between the engine and API
// processes when both start against an empty database.
const migrationLockKey int64 = 0x72756c65666c6f77

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
`

// Migrator applies numbered schema steps in ascending order. Every pending
// step runs in one transaction that holds a PostgreSQL advisory lock, so a
// failed step leaves the schema at its previous version.
type Migrator struct {
	db     *sql.DB
	logger *slog.Logger
	steps  map[int]string
}

func NewMigrator(logger *slog.Logger, db *sql.DB, steps map[int]string) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger.With("module", "migrations"),
		steps:  steps,
	}
}

// LatestVersion returns the highest known step, 0 when there are none.
func (m *Migrator) LatestVersion() int {
	latest := 0
	for version := range m.steps {
		latest = max(latest, version)
	}

	return latest
}

// Pending returns the step versions above current, ascending.
func (m *Migrator) Pending(current int) []int {
	var pending []int

	for _, version := range slices.Sorted(maps.Keys(m.steps)) {
		if version > current {
			pending = append(pending, version)
		}
	}

	return pending
}

// Migrate brings the schema up to LatestVersion and returns the version it
// started from.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin migration transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return 0, fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if _, err = tx.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to query current schema version: %w", err)
	}

	pending := m.Pending(current)
	if len(pending) == 0 {
		m.logger.DebugContext(ctx, "Schema is up to date", "version", current)

		return current, nil
	}

	for _, version := range pending {
		m.logger.InfoContext(ctx, "Applying migration", "version", version)

		if _, err = tx.ExecContext(ctx, m.steps[version]); err != nil {
			return current, fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return current, fmt.Errorf("failed to record migration %d: %w", version, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return current, fmt.Errorf("failed to commit migrations: %w", err)
	}

	m.logger.InfoContext(ctx, "Database migrations completed", "from", current, "to", pending[len(pending)-1])

	return current, nil
}
