package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"assent/internal/domain"
)

// producer is the slice of *kgo.Client the publisher needs; tests swap in a
// fake.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher writes committed audit entries to a Kafka topic, keyed by the
// consent record id so one record's history stays in one partition, in
// order.
type Publisher struct {
	client producer
	topic  string
}

func NewPublisher(client producer, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// NewKafkaClient builds the franz-go client used by the publisher.
func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}
	return client, nil
}

// wirePayload is the JSON structure published to Kafka.
type wirePayload struct {
	ID            string            `json:"id"`
	RecordID      string            `json:"record_id"`
	Seq           int64             `json:"seq"`
	Action        string            `json:"action"`
	ChangedFields []string          `json:"changed_fields,omitempty"`
	OldValues     map[string]string `json:"old_values,omitempty"`
	NewValues     map[string]string `json:"new_values,omitempty"`
	Actor         string            `json:"actor"`
	Reason        string            `json:"reason,omitempty"`
	Timestamp     string            `json:"timestamp"`
}

func (p *Publisher) Publish(ctx context.Context, entry domain.AuditEntry) error {
	payload, err := json.Marshal(wirePayload{
		ID:            entry.ID.String(),
		RecordID:      entry.RecordID.String(),
		Seq:           entry.Seq,
		Action:        entry.Action,
		ChangedFields: entry.ChangedFields,
		OldValues:     entry.OldValues,
		NewValues:     entry.NewValues,
		Actor:         entry.Actor,
		Reason:        entry.Reason,
		Timestamp:     entry.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.RecordID.String()),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit entry: %w", err)
	}
	return nil
}
