package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"incident-service/internal/domain/incident"
)

// KafkaNotifier publishes incident events to a topic for downstream
// consumers (dashboards, archival, secondary alerting). Events are keyed by
// source id so one camera's incidents stay ordered within a partition.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
	}, nil
}

func (n *KafkaNotifier) Name() string { return "kafka" }

func (n *KafkaNotifier) Notify(ctx context.Context, ev incident.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(ev.SourceID),
		Value: sarama.ByteEncoder(payload),
	}

	if _, _, err := n.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send incident event: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	if err := n.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
