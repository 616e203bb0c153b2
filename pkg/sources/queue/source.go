// Package queue provides an event source that pops entity change events
// from a Redis list.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/go-playground/validator/v10"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultPollTimeout = time.Second
	errorBackoff       = time.Second
)

// Config configures a Redis list source.
type Config struct {
	Addr        string `validate:"required,hostname_port"`
	Password    string
	DB          int           `validate:"gte=0"`
	Queue       string        `validate:"required"`
	PollTimeout time.Duration `validate:"gte=0"`
}

// Source pops JSON encoded models.Event values from a Redis list with BLPOP
// and hands them to the callback one at a time.
type Source struct {
	config   Config
	client   redis.UniversalClient
	callback protocol.EventCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

func NewSource(config Config, logger *slog.Logger) (*Source, error) {
	if config.PollTimeout == 0 {
		config.PollTimeout = defaultPollTimeout
	}

	source := &Source{
		config: config,
		logger: logger.With(
			"module", "queue_source",
			"queue", config.Queue,
		),
	}

	if err := source.Validate(); err != nil {
		return nil, err
	}

	return source, nil
}

func (s *Source) Validate() error {
	if err := validator.New().Struct(s.config); err != nil {
		return errors.Join(protocol.ErrSourceMisconfigured, err)
	}

	return nil
}

func (s *Source) Start(ctx context.Context, callback protocol.EventCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Starting queue source")
	s.callback = callback

	if err := s.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	s.stopCh = make(chan struct{})
	s.started = true
	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) initializeClient(ctx context.Context) error {
	s.client = redis.NewClient(&redis.Options{
		Addr:     s.config.Addr,
		Password: s.config.Password,
		DB:       s.config.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close()

		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.InfoContext(ctx, "Connected to Redis", "addr", s.config.Addr, "db", s.config.DB)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := s.processMessage(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "Error processing message", "error", err)

				select {
				case <-time.After(errorBackoff):
				case <-s.stopCh:
				case <-ctx.Done():
				}
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, s.config.PollTimeout, s.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	event, err := events.DecodeEvent([]byte(result[1]))
	if err != nil {
		s.logger.WarnContext(ctx, "Dropping malformed event", "error", err)

		return nil
	}

	if err := s.callback(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Error handling event", "entity_type", event.EntityType, "entity_id", event.EntityID, "error", err)
	}

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Stopping queue source")

	close(s.stopCh)
	s.wg.Wait()
	s.started = false

	if err := s.client.Close(); err != nil {
		s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
	}

	return nil
}
