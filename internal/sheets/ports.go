package sheets

import (
	"context"

	"expensetracker/internal/core"
)

// Header is the first row of every backup sheet.
var Header = []string{"ID", "Date", "Description", "Amount", "Category", "AI", "Image"}

// Ports for backup adapters.
type (
	// BackupWriter mirrors the expense list to an external spreadsheet.
	BackupWriter interface {
		// AppendExpense adds one row and returns its range reference.
		AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
		// WriteSnapshot replaces the sheet contents with list.
		WriteSnapshot(ctx context.Context, list []core.Expense) (rangeRef string, err error)
	}

	// BackupReader reads a previously written backup.
	BackupReader interface {
		ReadSnapshot(ctx context.Context) ([]core.Expense, error)
	}

	Backup interface {
		BackupWriter
		BackupReader
	}
)
