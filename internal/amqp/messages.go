package amqp

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"expensetracker/internal/events"
)

const (
	contentTypeJSON = "application/json"
	headerEventType = "event_type"
)

// toPublishing wraps an event in a persistent JSON message. The event type is
// duplicated in a header so queues can be inspected without decoding bodies.
func toPublishing(e events.Event) (amqp091.Publishing, error) {
	body, err := e.Marshal()
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID,
		Timestamp:    time.Now(),
		Type:         string(e.Type),
		Headers:      amqp091.Table{headerEventType: string(e.Type)},
		Body:         body,
	}, nil
}

func fromDelivery(d amqp091.Delivery) (events.Event, error) {
	if d.ContentType != "" && d.ContentType != contentTypeJSON {
		return events.Event{}, fmt.Errorf("unsupported content type %q", d.ContentType)
	}
	return events.Unmarshal(d.Body)
}
