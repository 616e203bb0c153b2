// Package main provides the ruleflow HTTP API: definitions, events,
// simulations, executions and retries.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/ruleflow/pkg/cmd"
	"github.com/dukex/ruleflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "ruleflow-api",
		Usage:                 "Manage workflow rules and inspect executions",
		EnableShellCompletion: true,
		Flags: append(cmd.EngineFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("ruleflow-api")

			logger.InfoContext(ctx, "Initializing ruleflow API")

			opts, err := cmd.EngineOptionsFromCommand(command)
			if err != nil {
				return err
			}

			engine, err := cmd.NewEngine(ctx, logger, opts)
			if err != nil {
				return fmt.Errorf("failed to initialize engine: %w", err)
			}

			defer func() {
				if err := engine.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close engine", "error", err)
				}
			}()

			if _, err := engine.Load(ctx); err != nil {
				logger.WarnContext(ctx, "Some workflow definitions were rejected", "error", err)
			}

			api := NewAPI(logger, engine)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
