package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
)

type kafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaPublisher connects a producer to the configured brokers. All
// events share one topic, keyed by event id so consumers can partition and
// dedupe; the event name rides a message header for cheap filtering.
func NewKafkaPublisher(addrs, topic string) (Publisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": addrs,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	zap.L().Info("[Kafka] producer connected", zap.String("addrs", addrs), zap.String("topic", topic))

	return &kafkaPublisher{producer: producer, topic: topic}, nil
}

func (p *kafkaPublisher) Publish(ctx context.Context, envelope Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	deliveryChan := make(chan kafka.Event, 1)
	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(envelope.EventID),
		Value:          body,
		Headers: []kafka.Header{
			{Key: "event_name", Value: []byte(envelope.Name)},
		},
	}

	if err := p.producer.Produce(message, deliveryChan); err != nil {
		return fmt.Errorf("produce: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-deliveryChan:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
	}

	return nil
}

func (p *kafkaPublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
