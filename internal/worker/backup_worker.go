// Package worker mirrors expense events into the backup sheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/events"
	"expensetracker/internal/log"
	"expensetracker/internal/sheets"
)

const (
	seenEventsSize = 10000
	seenEventsTTL  = 24 * time.Hour
)

// ExpenseSource is the read side of the expense store.
type ExpenseSource interface {
	Load(ctx context.Context)
	Get(id string) (core.Expense, error)
	Expenses() []core.Expense
}

// PreferencesSource reports whether backups are enabled.
type PreferencesSource interface {
	Get(ctx context.Context) core.Preferences
}

// BackupWorker handles expense events from the broker. Created expenses are
// appended to the backup; every other change rewrites the whole snapshot so
// the sheet never holds two rows for one id. Each event id is processed at most once while it stays
// in the seen cache.
type BackupWorker struct {
	expenses ExpenseSource
	prefs    PreferencesSource
	backup   sheets.BackupWriter
	seen     *cache.LRUCache[time.Time]
	logger   *log.Logger
}

func NewBackupWorker(expenses ExpenseSource, prefs PreferencesSource, backup sheets.BackupWriter, logger *log.Logger) *BackupWorker {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &BackupWorker{
		expenses: expenses,
		prefs:    prefs,
		backup:   backup,
		seen:     cache.NewLRUCache[time.Time](seenEventsSize, seenEventsTTL),
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// SeenCache exposes the dedup cache so it can be registered for cleanup.
func (w *BackupWorker) SeenCache() *cache.LRUCache[time.Time] {
	return w.seen
}

// Handle implements events.Handler. A failed event is forgotten so a
// redelivery retries it.
func (w *BackupWorker) Handle(ctx context.Context, e events.Event) error {
	logger := w.logger.With(log.FieldEventID, e.ID, log.FieldEventType, e.Type)

	if !w.seen.SetIfAbsent(e.ID, time.Now()) {
		logger.DebugContext(ctx, "Skipping already processed event")
		return nil
	}

	if !w.prefs.Get(ctx).Backup {
		logger.DebugContext(ctx, "Backup disabled, ignoring event")
		return nil
	}

	w.expenses.Load(ctx)

	var err error
	if e.Type.Snapshot() {
		err = w.snapshot(ctx)
	} else {
		err = w.append(ctx, e.ExpenseID)
	}
	if err != nil {
		w.seen.Delete(e.ID)
		logger.ErrorContext(ctx, "Failed to back up event",
			log.FieldOperation, log.OpBackup,
			log.FieldExpenseID, e.ExpenseID,
			log.FieldRevision, e.Revision,
			log.FieldError, err)
		return err
	}
	return nil
}

func (w *BackupWorker) append(ctx context.Context, id string) error {
	exp, err := w.expenses.Get(id)
	if errors.Is(err, core.ErrExpenseNotFound) {
		// Removed before the event arrived; the snapshot reflects that.
		return w.snapshot(ctx)
	}
	if err != nil {
		return err
	}

	ref, err := w.backup.AppendExpense(ctx, exp)
	if err != nil {
		return fmt.Errorf("append expense %s: %w", id, err)
	}
	w.logger.InfoContext(ctx, "Expense appended to backup",
		log.FieldOperation, log.OpBackup,
		log.FieldExpenseID, id,
		log.FieldBackupRef, ref)
	return nil
}

func (w *BackupWorker) snapshot(ctx context.Context) error {
	list := w.expenses.Expenses()
	ref, err := w.backup.WriteSnapshot(ctx, list)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	w.logger.InfoContext(ctx, "Backup snapshot written",
		log.FieldOperation, log.OpBackup,
		log.FieldCount, len(list),
		log.FieldBackupRef, ref)
	return nil
}

// SnapshotNow reloads the store and rewrites the backup when backups are
// enabled. It runs on the cron schedule.
func (w *BackupWorker) SnapshotNow(ctx context.Context) error {
	if !w.prefs.Get(ctx).Backup {
		w.logger.DebugContext(ctx, "Backup disabled, skipping scheduled snapshot")
		return nil
	}
	w.expenses.Load(ctx)
	return w.snapshot(ctx)
}
