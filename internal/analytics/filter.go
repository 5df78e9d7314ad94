package analytics

import (
	"strings"
	"time"

	"expensetracker/internal/core"
)

// AllCategories matches every category in a filter.
const AllCategories = "all"

// FilterOptions narrows the transactions list. Zero values match everything.
type FilterOptions struct {
	Search     string
	CategoryID string
	Start      *time.Time
	End        *time.Time
	// Location decides calendar days for Start/End; nil means time.Local.
	Location *time.Location
}

type FilterResult struct {
	Expenses []core.Expense `json:"expenses"`
	Count    int            `json:"count"`
	Total    float64        `json:"total"`
}

// Filter applies the search, category and date-range filters in store order.
// Date bounds compare calendar days only and are inclusive on both ends.
func Filter(expenses []core.Expense, opts FilterOptions) FilterResult {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	search := strings.ToLower(opts.Search)

	var start, end time.Time
	if opts.Start != nil {
		start = core.StartOfDay(opts.Start.In(loc))
	}
	if opts.End != nil {
		end = core.StartOfDay(opts.End.In(loc))
	}

	res := FilterResult{Expenses: make([]core.Expense, 0, len(expenses))}
	for _, e := range expenses {
		if search != "" && !strings.Contains(strings.ToLower(e.Description), search) {
			continue
		}
		if opts.CategoryID != "" && opts.CategoryID != AllCategories && e.Category.ID != opts.CategoryID {
			continue
		}
		if opts.Start != nil || opts.End != nil {
			t, err := core.ParseDate(e.Date, loc)
			if err != nil {
				continue
			}
			day := core.StartOfDay(t)
			if opts.Start != nil && day.Before(start) {
				continue
			}
			if opts.End != nil && day.After(end) {
				continue
			}
		}
		res.Expenses = append(res.Expenses, e)
		res.Total += e.Amount
	}
	res.Count = len(res.Expenses)
	return res
}
