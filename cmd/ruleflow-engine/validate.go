package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/ruleflow/pkg/builtin"
	"github.com/dukex/ruleflow/pkg/cmd"
	"github.com/dukex/ruleflow/pkg/log"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/workflow"
	"github.com/urfave/cli/v3"
)

// ErrInvalidDefinitions is returned when at least one definition is rejected.
var ErrInvalidDefinitions = errors.New("invalid workflow definitions found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate definition documents, or every stored definition when no file is given",
		ArgsUsage: "[definition.json ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing extension plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("ruleflow-engine").With("action", "validate")

			reg, err := cmd.NewRegistry(logger, command.String("plugins-path"), builtin.Deps{})
			if err != nil {
				return err
			}

			compiler := workflow.NewCompiler(reg)

			if paths := command.Args().Slice(); len(paths) > 0 {
				if invalid := validateDocuments(os.Stdout, compiler, paths); invalid > 0 {
					return fmt.Errorf("%d of %d: %w", invalid, len(paths), ErrInvalidDefinitions)
				}

				return nil
			}

			if command.String("database-url") == "" {
				return errors.New("either definition files or --database-url are required")
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			repository := workflow.NewRepository(persistence, workflow.NewStore(logger), compiler, logger)

			loaded, err := repository.Load(ctx)
			_, _ = fmt.Fprintf(os.Stdout, "Loaded %d workflow definitions\n", loaded)

			if err != nil {
				_, _ = fmt.Fprintf(os.Stdout, "❌ INVALID:\n%v\n", err)

				return ErrInvalidDefinitions
			}

			return nil
		},
	}
}

// validateDocuments checks each file against the document schema and the
// compiler and reports per file. It returns how many were rejected.
func validateDocuments(out io.Writer, compiler *workflow.Compiler, paths []string) int {
	invalid := 0

	for _, path := range paths {
		if err := validateDocument(compiler, path); err != nil {
			_, _ = fmt.Fprintf(out, "%s\n    ❌ INVALID: %v\n", path, err)
			invalid++

			continue
		}

		_, _ = fmt.Fprintf(out, "%s\n    ✅ VALID\n", path)
	}

	return invalid
}

func validateDocument(compiler *workflow.Compiler, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	def, err := workflow.DecodeDocument(raw)
	if err != nil {
		return err
	}

	if def.ID == "" {
		def.ID = path
	}

	if def.Version == 0 {
		def.Version = 1
	}

	if def.Status == "" {
		def.Status = models.WorkflowStatusDraft
	}

	_, err = compiler.Compile(def)

	return err
}
