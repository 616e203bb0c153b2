// Package kafka provides the Kafka event bus transport.
package kafka

import (
	"errors"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/ruleflow/pkg/events"
)

// ErrNoBrokers is returned when no Kafka broker address is configured.
var ErrNoBrokers = errors.New("no kafka brokers configured")

const clientID = "ruleflow"

// Config selects the cluster and consumer group of the bus.
type Config struct {
	Brokers       []string
	ConsumerGroup string
}

// Channel is the Kafka-backed publisher and subscriber pair.
type Channel struct {
	Publisher  *kafka.Publisher
	Subscriber *kafka.Subscriber
}

// NewChannel connects to cfg.Brokers. Entity changes and execution events
// are partitioned by their key, so events for one entity keep their order.
func NewChannel(logger watermill.LoggerAdapter, cfg Config) (*Channel, error) {
	brokers := brokerList(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: subscriberConfig(),
			ConsumerGroup:         cfg.ConsumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.NewWithPartitioningMarshaler(partitionKey),
			OverwriteSaramaConfig: publisherConfig(),
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, errors.Join(err, subscriber.Close())
	}

	return &Channel{Publisher: publisher, Subscriber: subscriber}, nil
}

// brokerList accepts both repeated flags and comma separated values.
func brokerList(raw []string) []string {
	var brokers []string

	for _, entry := range raw {
		for _, broker := range strings.Split(entry, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	return brokers
}

func subscriberConfig() *sarama.Config {
	cfg := kafka.DefaultSaramaSubscriberConfig()
	cfg.ClientID = clientID
	// Entity changes published while the engine was down must still run.
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	return cfg
}

func publisherConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Compression = sarama.CompressionSnappy

	return cfg
}

func partitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(events.EventMetadataKey), nil
}
