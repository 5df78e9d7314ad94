package memory

import (
	"context"
	"fmt"
	"sync"

	"expensetracker/internal/core"
	"expensetracker/internal/sheets"
)

var _ sheets.Backup = (*Store)(nil)

// Store is an in-process backup target. Rows behave like a sheet: appends
// accumulate, snapshots replace everything.
type Store struct {
	mu        sync.Mutex
	rows      []core.Expense
	appends   int
	snapshots int
}

func New() *Store {
	return &Store{}
}

// AppendExpense stores the expense and returns a synthetic row reference.
func (s *Store) AppendExpense(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, e)
	s.appends++
	// Row 1 is the header.
	return fmt.Sprintf("mem!A%d", len(s.rows)+1), nil
}

func (s *Store) WriteSnapshot(_ context.Context, list []core.Expense) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append([]core.Expense(nil), list...)
	s.snapshots++
	return fmt.Sprintf("mem!A1:G%d", len(s.rows)+1), nil
}

// ReadSnapshot returns one row per id, the latest one winning.
func (s *Store) ReadSnapshot(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sheets.LatestByID(s.rows), nil
}

// Stats reports how many appends and snapshots were written.
func (s *Store) Stats() (appends, snapshots int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends, s.snapshots
}
