package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannel_RequiresBrokers(t *testing.T) {
	for _, brokers := range [][]string{nil, {""}, {" ", ","}} {
		_, err := NewChannel(watermill.NopLogger{}, Config{Brokers: brokers, ConsumerGroup: "cg-ruleflow"})
		assert.ErrorIs(t, err, ErrNoBrokers)
	}
}

func TestBrokerList(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []string
	}{
		{"repeated flags", []string{"k1:9092", "k2:9092"}, []string{"k1:9092", "k2:9092"}},
		{"comma separated", []string{"k1:9092, k2:9092"}, []string{"k1:9092", "k2:9092"}},
		{"blank entries dropped", []string{"", "k1:9092,,"}, []string{"k1:9092"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, brokerList(tt.raw))
		})
	}
}

func TestSaramaConfigs(t *testing.T) {
	sub := subscriberConfig()
	assert.Equal(t, sarama.OffsetOldest, sub.Consumer.Offsets.Initial)
	assert.Equal(t, clientID, sub.ClientID)

	pub := publisherConfig()
	assert.Equal(t, sarama.WaitForAll, pub.Producer.RequiredAcks)
	assert.True(t, pub.Producer.Return.Successes)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("msg-1", []byte(`{}`))
	msg.Metadata.Set(events.EventMetadataKey, "order-1")

	key, err := partitionKey(events.EntityTopic, msg)
	require.NoError(t, err)
	assert.Equal(t, "order-1", key)
}
