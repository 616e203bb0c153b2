package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

func TestNewSource(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{name: "valid", config: Config{Brokers: []string{"localhost:9092"}, Topic: "orders.cdc"}},
		{name: "missing topic", config: Config{Brokers: []string{"localhost:9092"}}, expectError: true},
		{name: "missing brokers", config: Config{Topic: "orders.cdc"}, expectError: true},
		{name: "bad broker", config: Config{Brokers: []string{"localhost"}, Topic: "orders.cdc"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := NewSource(tt.config, discard)
			if tt.expectError {
				assert.ErrorIs(t, err, protocol.ErrSourceMisconfigured)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, defaultConsumerGroup, source.config.ConsumerGroup)
		})
	}
}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "orders.cdc" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return int64(len(c.messages)) }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaim(t *testing.T) {
	source, err := NewSource(Config{Brokers: []string{"localhost:9092"}, Topic: "orders.cdc"}, discard)
	require.NoError(t, err)

	var received []models.Event

	source.callback = func(_ context.Context, event models.Event) error {
		received = append(received, event)
		if event.EntityID == "order-2" {
			return errors.New("pool saturated")
		}

		return nil
	}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders.cdc", Offset: 0, Value: []byte(`{"entity_type":"order","operation":"create","entity_id":"order-1","entity_data":{"total":150}}`)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders.cdc", Offset: 1, Value: []byte(`not json`)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders.cdc", Offset: 2, Value: []byte(`{"id":"evt-2","entity_type":"order","operation":"update","entity_id":"order-2"}`)}
	close(claim.messages)

	session := &fakeSession{ctx: t.Context()}
	handler := &consumerGroupHandler{source: source}

	require.NoError(t, handler.ConsumeClaim(session, claim))

	assert.Equal(t, []int64{0, 1, 2}, session.marked, "every message is marked, including failures")
	require.Len(t, received, 2)
	assert.Equal(t, "orders.cdc-0-0", received[0].ID)
	assert.Equal(t, 150.0, received[0].EntityData["total"])
	assert.Equal(t, "evt-2", received[1].ID)
}

func TestSource_StopBeforeStart(t *testing.T) {
	source, err := NewSource(Config{Brokers: []string{"localhost:9092"}, Topic: "orders.cdc"}, discard)
	require.NoError(t, err)

	assert.NoError(t, source.Stop(t.Context()))
}
