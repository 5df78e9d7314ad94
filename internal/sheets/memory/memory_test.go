package memory

import (
	"context"
	"testing"

	"expensetracker/internal/core"
)

func sample(id string) core.Expense {
	return core.Expense{
		ID:          id,
		Amount:      1.23,
		Description: "t",
		Category:    core.LookupCategory("food"),
		Date:        "2025-03-01T10:00:00.000Z",
	}
}

func TestMemoryStoreAppendAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New()

	ref, err := s.AppendExpense(ctx, sample("a"))
	if err != nil || ref != "mem!A2" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	if _, err := s.AppendExpense(ctx, core.Expense{}); err == nil {
		t.Fatal("expected validation error for empty expense")
	}

	ref, err = s.WriteSnapshot(ctx, []core.Expense{sample("b"), sample("c")})
	if err != nil || ref != "mem!A1:G3" {
		t.Fatalf("unexpected snapshot: ref=%q err=%v", ref, err)
	}

	rows, err := s.ReadSnapshot(ctx)
	if err != nil || len(rows) != 2 || rows[0].ID != "b" {
		t.Fatalf("unexpected rows: %v err=%v", rows, err)
	}

	appends, snapshots := s.Stats()
	if appends != 1 || snapshots != 1 {
		t.Errorf("Stats() = %d, %d; want 1, 1", appends, snapshots)
	}
}

func TestMemoryStoreReadSnapshotKeepsLatestRow(t *testing.T) {
	ctx := context.Background()
	s := New()

	edited := sample("a")
	edited.Amount = 9.99
	for _, e := range []core.Expense{sample("a"), sample("b"), edited} {
		if _, err := s.AppendExpense(ctx, e); err != nil {
			t.Fatalf("AppendExpense(%s): %v", e.ID, err)
		}
	}

	rows, err := s.ReadSnapshot(ctx)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if len(rows) != 2 || rows[0] != edited || rows[1].ID != "b" {
		t.Errorf("ReadSnapshot() = %+v, want [a(9.99) b]", rows)
	}
}
