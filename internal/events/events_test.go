package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	e := New(ExpenseCreated, "abc", 3)
	require.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())

	body, err := e.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(body)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, ExpenseCreated, got.Type)
	assert.Equal(t, "abc", got.ExpenseID)
	assert.Equal(t, int64(3), got.Revision)
	assert.True(t, e.Timestamp.Equal(got.Timestamp))
}

func TestUnmarshalRejectsBadEvents(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing id", `{"type":"expense.created"}`},
		{"unknown type", `{"id":"1","type":"expense.exploded"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestTypeSnapshot(t *testing.T) {
	assert.False(t, ExpenseCreated.Snapshot())
	assert.True(t, ExpenseUpdated.Snapshot())
	assert.True(t, ExpenseDeleted.Snapshot())
	assert.True(t, ExpensesCleared.Snapshot())
	assert.True(t, ExpensesImported.Snapshot())
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	var r Recorder
	require.NoError(t, r.Publish(ctx, New(ExpensesCleared, "", 1)))

	r.FailWith(errors.New("broker down"))
	assert.Error(t, r.Publish(ctx, New(ExpensesCleared, "", 2)))

	got := r.Events()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Revision)
}
