// Package kafka publishes lifecycle events to a Kafka topic via franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "volunteerhub/pkg/platform/audit"
)

// Store appends lifecycle events to a Kafka topic. Records are keyed by
// activity ID so per-activity ordering is preserved within a partition.
type Store struct {
	client *kgo.Client
	topic  string
}

// New dials the brokers and returns a Kafka-backed event store.
func New(brokers []string, topic string) (*Store, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

type payload struct {
	Timestamp  string `json:"timestamp"`
	Action     string `json:"action"`
	UserID     string `json:"user_id,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	p := payload{
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Action:    string(event.Action),
		RequestID: event.RequestID,
		Detail:    event.Detail,
	}
	if !event.UserID.IsNil() {
		p.UserID = event.UserID.String()
	}
	if !event.ActivityID.IsNil() {
		p.ActivityID = event.ActivityID.String()
	}

	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(p.ActivityID),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce lifecycle event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying client.
func (s *Store) Close() {
	s.client.Close()
}
