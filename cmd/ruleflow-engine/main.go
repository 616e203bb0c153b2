// Package main provides the ruleflow engine: it consumes entity changes and
// schedule ticks and runs the workflows they trigger.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "ruleflow-engine",
		Usage:                 "Run and validate reactive workflow rules",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
