package poll

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/icewiki/nomulus/internal/model"
)

// KafkaPublisher publishes poll messages to a Kafka topic keyed by registrar,
// so one registrar's messages stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher connects to brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// Publish produces msg synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, msg model.PollMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode poll message: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.Client),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(msg.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce poll message %s: %w", msg.ID, err)
	}
	return nil
}

// Close flushes and closes the client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
