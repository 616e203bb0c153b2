package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/postgresql"
	"github.com/dukex/ruleflow/pkg/testutil"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"executions", "workflow_versions", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("ruleflow_test"),
			postgres.WithUsername("ruleflow"),
			postgres.WithPassword("ruleflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	persistence, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = persistence.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return persistence, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "workflow_versions", "executions", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_ConcurrentStartup(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.DiscardHandler)

	var group errgroup.Group

	for range 3 {
		group.Go(func() error {
			p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
			if err != nil {
				return err
			}

			return p.Close(ctx)
		})
	}

	require.NoError(t, group.Wait())

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	var applied int

	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied)
	require.NoError(t, err)
	assert.Equal(t, 2, applied, "each step is recorded once")
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestWorkflowRepository_Versions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	v1 := testutil.CreateTestDefinition(testutil.WithDefinitionID("orders"))
	require.NoError(t, repo.Save(ctx, v1))
	assert.False(t, v1.CreatedAt.IsZero())

	v2 := testutil.CreateTestDefinition(testutil.WithDefinitionID("orders"), testutil.WithVersion(2))
	v2.Conditions = []models.Condition{models.And(models.FieldCondition("total", models.OperatorGt, 100), models.Not(models.FieldCondition("status", models.OperatorEq, "void")))}
	require.NoError(t, repo.Save(ctx, v2))

	latest, err := repo.GetByID(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	require.Len(t, latest.Conditions, 1)
	assert.Len(t, latest.Conditions[0].Children, 2)

	first, err := repo.GetVersion(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	err = repo.Save(ctx, testutil.CreateTestDefinition(testutil.WithDefinitionID("orders"), testutil.WithVersion(2)))
	assert.True(t, persistence.IsWorkflowAlreadyExists(err))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, "orders"))

	_, err = repo.GetByID(ctx, "orders")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	_, err = repo.GetVersion(ctx, "orders", 2)
	assert.NoError(t, err)

	assert.True(t, persistence.IsWorkflowNotFound(repo.Delete(ctx, "orders")))
}

func TestExecutionRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()

	failed := models.ActionResult{ID: "r1", ActionID: "notify", Status: models.ActionStatusFailure, Error: "smtp down"}
	record := testutil.CreateTestRecord("orders", failed)
	require.NoError(t, repo.Save(ctx, record))

	record.ActionResults = append(record.ActionResults, models.ActionResult{ID: "r2", ActionID: "notify", Status: models.ActionStatusSuccess, RetryOf: "r1"})
	record.Status = models.Aggregate(record.ActionResults)
	require.NoError(t, repo.Save(ctx, record))

	got, err := repo.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, got.Status)
	assert.Len(t, got.ActionResults, 2)

	for range 3 {
		require.NoError(t, repo.Save(ctx, testutil.CreateTestRecord("invoices")))
	}

	page, err := repo.List(ctx, persistence.ListExecutionsOptions{WorkflowID: "invoices", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Executions, 2)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.True(t, page.HasNextPage)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}
