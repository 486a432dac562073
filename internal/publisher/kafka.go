// Package publisher fans reconciled records out to downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"flightsync/internal/models"
)

const (
	headerRoundID = "round-id"
	headerSource  = "source"
	headerStatus  = "status"
)

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per record, keyed by identity key so a
// flight's updates land on the same partition in order
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher writing to topic on brokers
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &KafkaPublisher{writer: writer, topic: topic}
}

// Publish sends records from one round. An empty slice is a no-op.
func (p *KafkaPublisher) Publish(ctx context.Context, roundID string, records []models.FlightRecord) error {
	if len(records) == 0 {
		return nil
	}

	msgs, err := buildMessages(roundID, records)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		slog.Error("Failed to publish flight records",
			"round_id", roundID,
			"topic", p.topic,
			"records", len(records),
			"error", err,
		)
		return fmt.Errorf("failed to publish records: %w", err)
	}

	slog.Info("Published flight records", "round_id", roundID, "topic", p.topic, "records", len(records))
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessages(roundID string, records []models.FlightRecord) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record %s: %w", r.Key(), err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.Key().String()),
			Value: value,
			Headers: []kafka.Header{
				{Key: headerRoundID, Value: []byte(roundID)},
				{Key: headerSource, Value: []byte(r.Source)},
				{Key: headerStatus, Value: []byte(r.Status)},
			},
		})
	}
	return msgs, nil
}
