// Package kafka carries expense events over Kafka topics.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"expensetracker/internal/events"
)

// Publisher writes events keyed by expense id, so events about one record
// land on the same partition in order.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	data, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   messageKey(e),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write event %s: %w", e.ID, err)
	}

	slog.DebugContext(ctx, "Published expense event",
		"event_id", e.ID,
		"event_type", e.Type,
		"topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// messageKey partitions by expense; list-wide events share one key.
func messageKey(e events.Event) []byte {
	if e.ExpenseID == "" {
		return []byte("expenses")
	}
	return []byte(e.ExpenseID)
}
