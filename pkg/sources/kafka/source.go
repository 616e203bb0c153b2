// Package kafka provides an event source that consumes entity change events
// written as plain JSON to a Kafka topic by external producers.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/go-playground/validator/v10"
)

const (
	defaultConsumerGroup   = "ruleflow-sources"
	kafkaSessionTimeout    = 10 * time.Second
	kafkaHeartbeatInterval = 3 * time.Second
	kafkaRetryInterval     = 5 * time.Second
)

// Config configures a Kafka topic source.
type Config struct {
	Brokers       []string `validate:"required,min=1,dive,hostname_port"`
	Topic         string   `validate:"required"`
	ConsumerGroup string
}

// Source consumes a topic in a consumer group. Messages of one partition are
// handed to the callback in order; a message is marked once its callback
// returned, whatever the outcome.
type Source struct {
	config   Config
	consumer sarama.ConsumerGroup
	callback protocol.EventCallback
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewSource(config Config, logger *slog.Logger) (*Source, error) {
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = defaultConsumerGroup
	}

	source := &Source{
		config: config,
		logger: logger.With(
			"module", "kafka_source",
			"topic", config.Topic,
			"consumer_group", config.ConsumerGroup,
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

func newConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = kafkaSessionTimeout
	config.Consumer.Group.Heartbeat.Interval = kafkaHeartbeatInterval
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	return config
}

func (s *Source) Start(ctx context.Context, callback protocol.EventCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	consumer, err := sarama.NewConsumerGroup(s.config.Brokers, s.config.ConsumerGroup, newConsumerConfig())
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	s.logger.InfoContext(ctx, "Starting Kafka source", "brokers", s.config.Brokers)

	ctx, cancel := context.WithCancel(ctx)

	s.consumer = consumer
	s.callback = callback
	s.cancel = cancel
	s.started = true

	s.wg.Add(2)

	go s.consume(ctx)
	go s.monitorErrors(ctx)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	handler := &consumerGroupHandler{source: s}

	for ctx.Err() == nil {
		if err := s.consumer.Consume(ctx, []string{s.config.Topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}

			s.logger.ErrorContext(ctx, "Kafka consumer error", "error", err)

			select {
			case <-time.After(kafkaRetryInterval):
			case <-ctx.Done():
			}
		}
	}
}

func (s *Source) monitorErrors(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case err, ok := <-s.consumer.Errors():
			if !ok {
				return
			}

			s.logger.ErrorContext(ctx, "Kafka consumer group error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Stopping Kafka source")

	s.cancel()
	err := s.consumer.Close()
	s.wg.Wait()
	s.started = false

	return err
}

type consumerGroupHandler struct {
	source *Source
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.source.logger.InfoContext(session.Context(), "Kafka consumer group session started", "claims", session.Claims())

	return nil
}

func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.source.logger.InfoContext(session.Context(), "Kafka consumer group session ended")

	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()

	for message := range claim.Messages() {
		h.handle(ctx, message)
		session.MarkMessage(message, "")
	}

	return nil
}

func (h *consumerGroupHandler) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	logger := h.source.logger.With("partition", message.Partition, "offset", message.Offset)

	event, err := events.DecodeEvent(message.Value)
	if err != nil {
		logger.WarnContext(ctx, "Dropping malformed event", "error", err)

		return
	}

	if event.ID == "" {
		event.ID = fmt.Sprintf("%s-%d-%d", message.Topic, message.Partition, message.Offset)
	}

	if err := h.source.callback(ctx, event); err != nil {
		logger.ErrorContext(ctx, "Error handling event", "entity_type", event.EntityType, "entity_id", event.EntityID, "error", err)
	}
}
