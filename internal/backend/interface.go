package backend

import (
	"expensetracker/internal/events"
	"expensetracker/internal/sheets"
	"expensetracker/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Backends bundles everything a process needs to run, plus the function that
// releases it.
type Backends struct {
	KV        storage.KV
	Publisher events.Publisher
	Consumer  events.Consumer
	Backup    sheets.Backup
	Cleanup   CleanupFunc
}
