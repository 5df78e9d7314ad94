package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"expensetracker/internal/events"
)

const retryDelay = 2 * time.Second

// Consumer reads events as part of a consumer group. Offsets are committed only
// after the handler succeeds, so a failed event is retried.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		}),
	}
}

func (c *Consumer) Consume(ctx context.Context, h events.Handler) error {
	slog.InfoContext(ctx, "Started consuming expense events", "topic", c.reader.Config().Topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("reader closed: %w", err)
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		e, err := events.Unmarshal(msg.Value)
		if err != nil {
			slog.ErrorContext(ctx, "Dropping undecodable event",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset)
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return fmt.Errorf("commit message: %w", err)
			}
			continue
		}

		if err := c.handle(ctx, e, h); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

// handle retries h until it succeeds or ctx ends. Kafka has no per-message
// nack, so the partition waits on the failing event.
func (c *Consumer) handle(ctx context.Context, e events.Event, h events.Handler) error {
	for {
		err := h(ctx, e)
		if err == nil {
			return nil
		}
		slog.ErrorContext(ctx, "Failed to handle event, retrying",
			"error", err,
			"event_id", e.ID,
			"event_type", e.Type)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
