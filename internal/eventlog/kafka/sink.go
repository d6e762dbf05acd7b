// Package kafka ships registry events to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"dplay/internal/eventlog"
)

// DefaultTopic is where registry events land unless configured otherwise.
const DefaultTopic = "dplay.registry.events"

// Sink publishes committed registry events to Kafka. Records are keyed by
// listing ID so per-listing ordering survives partitioning.
type Sink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewSink connects to the given brokers and ensures the topic exists.
func NewSink(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*Sink, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
	}
	// An existing topic is fine; anything else is a setup failure.
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, resp.Err)
	}

	return &Sink{client: client, topic: topic, logger: logger}, nil
}

// Publish produces all events synchronously. Partial failures return an
// error so the worker retries the whole batch; events carry unique IDs, so
// downstream consumers dedupe on redelivery.
func (s *Sink) Publish(ctx context.Context, events []eventlog.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", event.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: s.topic,
			Key:   []byte(event.ListingID.String()),
			Value: value,
		})
	}
	results := s.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce registry events: %w", err)
	}
	s.logger.DebugContext(ctx, "published registry events", "count", len(events), "topic", s.topic)
	return nil
}

// Close flushes buffered records and releases the client.
func (s *Sink) Close() {
	s.client.Close()
}
