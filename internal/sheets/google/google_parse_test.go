package google

import (
	"testing"

	"expensetracker/internal/core"
)

func TestExpenseRowRoundTrip(t *testing.T) {
	e := core.Expense{
		ID:          "x1",
		Amount:      3.5,
		Description: "Bus",
		Category:    core.LookupCategory("transport"),
		Date:        "2025-03-01T08:00:00.000Z",
	}

	list, skipped := parseRows([][]any{expenseRow(e)})
	if skipped != 0 || len(list) != 1 {
		t.Fatalf("parseRows() = %v, skipped %d", list, skipped)
	}
	if list[0] != e {
		t.Errorf("parseRows() = %+v, want %+v", list[0], e)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.50", 12.5, true},
		{"12,50", 12.5, true},
		{" 7 ", 7, true},
		{"", 0, false},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseAmount(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseAmount(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
