package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/ruleflow/pkg/channels/gochannel"
	"github.com/dukex/ruleflow/pkg/channels/kafka"
	"github.com/dukex/ruleflow/pkg/eventbus"
)

const consumerGroup = "ruleflow-engine"

// NewEventBus creates the event bus named by provider: "gochannel" for an
// in-process bus, "kafka" for a Kafka backed one.
func NewEventBus(provider string, brokers []string, logger *slog.Logger) (eventbus.EventBus, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "gochannel":
		pubSub := gochannel.NewChannel(adapter)

		return eventbus.NewWatermillEventBus(pubSub, pubSub, logger), nil
	case "kafka":
		channel, err := kafka.NewChannel(adapter, kafka.Config{Brokers: brokers, ConsumerGroup: consumerGroup})
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(channel.Publisher, channel.Subscriber, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
