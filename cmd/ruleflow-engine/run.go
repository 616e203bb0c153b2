package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/ruleflow/pkg/cmd"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/log"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/dukex/ruleflow/pkg/sources/kafka"
	"github.com/dukex/ruleflow/pkg/sources/queue"
	"github.com/dukex/ruleflow/pkg/sources/schedule"
	"github.com/urfave/cli/v3"
)

const defaultReloadInterval = 30 * time.Second

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Consume events and execute workflows",
		Flags: append(cmd.EngineFlags(),
			&cli.BoolFlag{
				Name:    "schedules",
				Usage:   "Emit schedule ticks for workflows with a schedule",
				Value:   true,
				Sources: cli.EnvVars("SCHEDULES_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "redis-queue-addr",
				Usage:   "Redis address of an additional list event source",
				Sources: cli.EnvVars("REDIS_QUEUE_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-queue",
				Usage:   "Redis list popped by the queue source",
				Value:   "ruleflow:events",
				Sources: cli.EnvVars("REDIS_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "kafka-source-topic",
				Usage:   "Kafka topic carrying plain JSON entity changes from external producers",
				Sources: cli.EnvVars("KAFKA_SOURCE_TOPIC"),
			},
			&cli.DurationFlag{
				Name:    "reload-interval",
				Usage:   "How often definitions are reloaded from persistence",
				Value:   defaultReloadInterval,
				Sources: cli.EnvVars("RELOAD_INTERVAL"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("ruleflow-engine")

			opts, err := cmd.EngineOptionsFromCommand(command)
			if err != nil {
				return err
			}

			engine, err := cmd.NewEngine(ctx, logger, opts)
			if err != nil {
				return fmt.Errorf("failed to initialize engine: %w", err)
			}

			defer func() {
				if err := engine.Close(context.Background()); err != nil {
					logger.Error("Failed to close engine", "error", err)
				}
			}()

			loaded, err := engine.Load(ctx)
			if err != nil {
				logger.WarnContext(ctx, "Some workflow definitions were rejected", "error", err)
			}

			logger.InfoContext(ctx, "Initializing ruleflow engine", "workflows", loaded)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := engine.Bus.Handle(events.EntityChangedEvent, engine.HandleEntityChanged); err != nil {
				return err
			}

			if err := engine.Bus.Subscribe(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to entity events: %w", err)
			}

			sources, err := newSources(command, engine, opts, logger)
			if err != nil {
				return err
			}

			for _, source := range sources {
				if err := source.Start(ctx, engine.HandleSourceEvent); err != nil {
					return fmt.Errorf("failed to start event source: %w", err)
				}

				defer func() {
					if err := source.Stop(context.Background()); err != nil {
						logger.Error("Failed to stop event source", "error", err)
					}
				}()
			}

			reload(ctx, engine, command.Duration("reload-interval"), logger)

			logger.Info("Shutting down ruleflow engine", "pending", engine.Coordinator.Pending())

			return nil
		},
	}
}

func newSources(command *cli.Command, engine *cmd.Engine, opts cmd.EngineOptions, logger *slog.Logger) ([]protocol.EventSource, error) {
	var sources []protocol.EventSource

	if command.Bool("schedules") {
		sources = append(sources, schedule.NewSource(
			engine.Repository,
			logger,
			schedule.WithResyncInterval(opts.Config.ScheduleResync),
		))
	}

	if addr := command.String("redis-queue-addr"); addr != "" {
		source, err := queue.NewSource(queue.Config{
			Addr:     addr,
			Password: command.String("redis-password"),
			Queue:    command.String("redis-queue"),
		}, logger)
		if err != nil {
			return nil, err
		}

		sources = append(sources, source)
	}

	if topic := command.String("kafka-source-topic"); topic != "" {
		source, err := kafka.NewSource(kafka.Config{Brokers: opts.KafkaBrokers, Topic: topic}, logger)
		if err != nil {
			return nil, err
		}

		sources = append(sources, source)
	}

	return sources, nil
}

// reload follows definitions published or deleted through the API until ctx ends.
func reload(ctx context.Context, engine *cmd.Engine, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		<-ctx.Done()

		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.Load(ctx); err != nil {
				logger.WarnContext(ctx, "Reload rejected workflow definitions", "error", err)
			}
		}
	}
}
