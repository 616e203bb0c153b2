// Package database provides the executor that writes to a SQL table.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/dukex/ruleflow/pkg/template"
	"github.com/lib/pq"
)

// Execer runs a statement. *sql.DB and *sql.Tx satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Executor struct {
	db Execer
}

func NewExecutor(db Execer) *Executor {
	return &Executor{db: db}
}

func (*Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"insert", "update", "delete"},
			},
			"target_entity": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Table to write, optionally schema qualified",
			},
			"field_mapping": map[string]any{
				"type":        "object",
				"description": "Column values. String values support templating.",
			},
			"filter": map[string]any{
				"type":        "object",
				"description": "Equality filter for update and delete. String values support templating.",
			},
		},
		"required":             []string{"operation", "target_entity"},
		"additionalProperties": false,
	}
}

func (e *Executor) ValidateConfig(config map[string]any) error {
	if err := actions.ValidateSchema(e.Schema(), config); err != nil {
		return err
	}

	cfg, err := actions.Decode[models.DatabaseConfig](config)
	if err != nil {
		return err
	}

	_, _, err = buildStatement(cfg, nil)

	return err
}

func (e *Executor) Execute(ctx context.Context, config map[string]any, actionCtx protocol.ActionContext) (any, error) {
	if e.db == nil {
		return nil, actions.Failed("no database configured")
	}

	cfg, err := actions.Decode[models.DatabaseConfig](config)
	if err != nil {
		return nil, err
	}

	query, args, err := buildStatement(cfg, template.ContextData(actionCtx, nil))
	if err != nil {
		return nil, err
	}

	result, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", models.ErrActionExecution, cfg.Operation, cfg.TargetEntity, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		affected = -1
	}

	actions.Logger(actionCtx, "database_action").InfoContext(ctx, "Statement executed",
		"operation", cfg.Operation, "target", cfg.TargetEntity, "rows_affected", affected)

	return map[string]any{"statement": query, "rows_affected": affected}, nil
}

// buildStatement renders cfg into a parameterized statement. Columns are
// emitted in sorted order. A nil data map checks the shape only.
func buildStatement(cfg models.DatabaseConfig, data map[string]any) (string, []any, error) {
	table := quoteQualified(cfg.TargetEntity)

	switch cfg.Operation {
	case "insert":
		if len(cfg.FieldMapping) == 0 {
			return "", nil, fmt.Errorf("%w: insert needs field_mapping", actions.ErrInvalidConfig)
		}

		columns, args, err := values(cfg.FieldMapping, data)
		if err != nil {
			return "", nil, err
		}

		placeholders := make([]string, len(columns))
		for i := range columns {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}

		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(placeholders, ", ")), args, nil

	case "update":
		if len(cfg.FieldMapping) == 0 || len(cfg.Filter) == 0 {
			return "", nil, fmt.Errorf("%w: update needs field_mapping and filter", actions.ErrInvalidConfig)
		}

		columns, args, err := values(cfg.FieldMapping, data)
		if err != nil {
			return "", nil, err
		}

		where, filterArgs, err := conditions(cfg.Filter, data, len(args))
		if err != nil {
			return "", nil, err
		}

		sets := make([]string, len(columns))
		for i, column := range columns {
			sets[i] = fmt.Sprintf("%s = $%d", column, i+1)
		}

		return fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where), append(args, filterArgs...), nil

	case "delete":
		if len(cfg.Filter) == 0 {
			return "", nil, fmt.Errorf("%w: delete needs filter", actions.ErrInvalidConfig)
		}

		where, args, err := conditions(cfg.Filter, data, 0)
		if err != nil {
			return "", nil, err
		}

		return fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args, nil
	}

	return "", nil, fmt.Errorf("%w: unknown operation %q", actions.ErrInvalidConfig, cfg.Operation)
}

func conditions(filter map[string]any, data map[string]any, offset int) (string, []any, error) {
	columns, args, err := values(filter, data)
	if err != nil {
		return "", nil, err
	}

	clauses := make([]string, len(columns))
	for i, column := range columns {
		clauses[i] = fmt.Sprintf("%s = $%d", column, offset+i+1)
	}

	return strings.Join(clauses, " AND "), args, nil
}

func values(fields map[string]any, data map[string]any) ([]string, []any, error) {
	names := slices.Sorted(maps.Keys(fields))
	columns := make([]string, 0, len(names))
	args := make([]any, 0, len(names))

	for _, name := range names {
		columns = append(columns, pq.QuoteIdentifier(name))

		value, err := renderValue(fields[name], data)
		if err != nil {
			kind := models.ErrActionExecution
			if data == nil {
				kind = actions.ErrInvalidConfig
			}

			return nil, nil, fmt.Errorf("%w: column %s: %w", kind, name, err)
		}

		args = append(args, value)
	}

	return columns, args, nil
}

func renderValue(value any, data map[string]any) (any, error) {
	str, ok := value.(string)
	if !ok || !strings.Contains(str, "{{") {
		return value, nil
	}

	if data == nil {
		_, err := template.Parse(str)

		return nil, err
	}

	return template.Render(str, data)
}

func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}

	return strings.Join(parts, ".")
}
