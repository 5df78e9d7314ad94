// Package events defines the change notifications emitted by the expense store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	ExpenseCreated   Type = "expense.created"
	ExpenseUpdated   Type = "expense.updated"
	ExpenseDeleted   Type = "expense.deleted"
	ExpensesCleared  Type = "expenses.cleared"
	ExpensesImported Type = "expenses.imported"
)

// Event is a lightweight notification: consumers re-read the store for the
// record itself. Revision is the store revision the mutation produced.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	ExpenseID string    `json:"expenseId,omitempty"`
	Revision  int64     `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// New stamps a fresh event id and the current time.
func New(t Type, expenseID string, revision int64) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		ExpenseID: expenseID,
		Revision:  revision,
		Timestamp: time.Now().UTC(),
	}
}

// Snapshot reports whether the event changes rows already in the backup, so
// a full rewrite is needed instead of a single-row append.
func (t Type) Snapshot() bool {
	switch t {
	case ExpenseUpdated, ExpenseDeleted, ExpensesCleared, ExpensesImported:
		return true
	default:
		return false
	}
}

func (t Type) IsValid() bool {
	switch t {
	case ExpenseCreated, ExpenseUpdated, ExpenseDeleted, ExpensesCleared, ExpensesImported:
		return true
	default:
		return false
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes and validates an event body.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.ID == "" {
		return Event{}, fmt.Errorf("decode event: missing id")
	}
	if !e.Type.IsValid() {
		return Event{}, fmt.Errorf("decode event: unknown type %q", e.Type)
	}
	return e, nil
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Handler processes one event. A returned error asks the transport to
// redeliver it.
type Handler func(ctx context.Context, e Event) error

// Consumer feeds broker events to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
