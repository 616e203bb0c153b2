package cmd

import (
	"github.com/dukex/ruleflow/pkg/config"
	"github.com/urfave/cli/v3"
)

// EngineFlags are the flags every binary that assembles an Engine accepts.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres:// or file://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers used by the kafka event bus",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing extension plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "action-database-url",
			Usage:   "Postgres URL the database action executor writes to",
			Sources: cli.EnvVars("ACTION_DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML file with engine tunables",
			Sources: cli.EnvVars("RULEFLOW_CONFIG"),
		},
		&cli.IntFlag{
			Name:    "worker-pool-size",
			Usage:   "Maximum executions running at once",
			Sources: cli.EnvVars("WORKER_POOL_SIZE"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// EngineOptionsFromCommand reads the EngineFlags of command.
func EngineOptionsFromCommand(command *cli.Command) (EngineOptions, error) {
	cfg := config.Default()

	if path := command.String("config"); path != "" {
		var err error

		cfg, err = config.LoadFile(path)
		if err != nil {
			return EngineOptions{}, err
		}
	}

	if command.IsSet("worker-pool-size") {
		cfg.WorkerPoolSize = command.Int("worker-pool-size")
	}

	return EngineOptions{
		Config:            cfg,
		DatabaseURL:       command.String("database-url"),
		EventBus:          command.String("event-bus"),
		KafkaBrokers:      command.StringSlice("kafka-brokers"),
		PluginsPath:       command.String("plugins-path"),
		ActionDatabaseURL: command.String("action-database-url"),
		Tracing:           command.Bool("tracing"),
	}, nil
}
