package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"expensetracker/internal/events"
)

var (
	_ events.Publisher = (*Publisher)(nil)
	_ events.Consumer  = (*Consumer)(nil)
)

func TestMessageKey(t *testing.T) {
	assert.Equal(t, []byte("abc"), messageKey(events.New(events.ExpenseUpdated, "abc", 2)))
	assert.Equal(t, []byte("expenses"), messageKey(events.New(events.ExpensesCleared, "", 3)))
}

func TestNewPublisherConfig(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "expense-events")
	defer p.Close()

	assert.Equal(t, "expense-events", p.writer.Topic)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
}
