package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sakif/voteboard/internal/metrics"
	"github.com/sakif/voteboard/internal/model"
)

// KafkaPublisher appends every event to a topic, giving an ordered audit
// trail of votes and help-queue changes.
//
// Messages are keyed by Event.Key (the username) with a hash balancer, so
// all events for one user land on the same partition in order. RequireAll
// waits for every in-sync replica; the JSON values compress well with
// Snappy.
type KafkaPublisher struct {
	writer  *kafka.Writer
	metrics *metrics.Metrics
}

func NewKafkaPublisher(brokers []string, topic string, m *metrics.Metrics) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            5,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, metrics: m}
}

func (kp *KafkaPublisher) Publish(ctx context.Context, ev model.Event) error {
	msg, err := kafkaMessage(ev)
	if err != nil {
		return err
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		kp.metrics.EventsPublished.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("event: writing %s to kafka: %w", ev.Name, err)
	}
	kp.metrics.EventsPublished.WithLabelValues("kafka", "ok").Inc()
	return nil
}

func (kp *KafkaPublisher) Close() error {
	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("event: closing kafka writer: %w", err)
	}
	return nil
}

// kafkaMessage builds the record for ev. Events without a key (clearing the
// help queue) are keyed by name.
func kafkaMessage(ev model.Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("event: encoding %s: %w", ev.Name, err)
	}

	key := ev.Key
	if key == "" {
		key = ev.Name
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Name)},
		},
		Time: time.Now().UTC(),
	}, nil
}
