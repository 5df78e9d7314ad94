// Package analytics derives dashboard view models from a snapshot of the
// expense list. Every function here is pure: it reads the records it is given
// and the supplied clock value, and never mutates either.
package analytics

import (
	"sort"
	"time"

	"expensetracker/internal/core"
)

const (
	// RecentWindowDays bounds how far back RecentExpenses looks.
	RecentWindowDays = 7
	// RecentLimit caps the RecentExpenses slice.
	RecentLimit = 5
	// DailyWindowDays is the number of buckets in DailySpending.
	DailyWindowDays = 7
)

// CategoryTotal is one row of the month's category breakdown.
type CategoryTotal struct {
	Category   core.Category `json:"category"`
	Amount     float64       `json:"amount"`
	Percentage float64       `json:"percentage"`
}

// DailyTotal is the summed spending of one local calendar day.
type DailyTotal struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Amount float64 `json:"amount"`
}

// Snapshot is recomputed on every call; nothing in it is persisted.
type Snapshot struct {
	TotalThisMonth    float64         `json:"totalThisMonth"`
	CategoryBreakdown []CategoryTotal `json:"categoryBreakdown"`
	RecentExpenses    []core.Expense  `json:"recentExpenses"`
	DailySpending     []DailyTotal    `json:"dailySpending"`
}

// Compute builds the analytics snapshot for now. "Local time" is now's
// location: month membership and day buckets are evaluated there. Records
// whose date cannot be parsed are ignored by every section.
func Compute(expenses []core.Expense, now time.Time) Snapshot {
	loc := now.Location()
	dates := parseDates(expenses, loc)

	total, breakdown := monthBreakdown(expenses, dates, now)
	return Snapshot{
		TotalThisMonth:    total,
		CategoryBreakdown: breakdown,
		RecentExpenses:    recent(expenses, dates, now),
		DailySpending:     daily(expenses, dates, now),
	}
}

// parseDates resolves every record's date once. A zero time marks a record
// whose date is unparseable.
func parseDates(expenses []core.Expense, loc *time.Location) []time.Time {
	out := make([]time.Time, len(expenses))
	for i, e := range expenses {
		if t, err := core.ParseDate(e.Date, loc); err == nil {
			out[i] = t
		}
	}
	return out
}

func monthBreakdown(expenses []core.Expense, dates []time.Time, now time.Time) (float64, []CategoryTotal) {
	year, month, _ := now.Date()

	var total float64
	var order []string
	sums := make(map[string]float64)
	for i, e := range expenses {
		t := dates[i]
		if t.IsZero() {
			continue
		}
		if y, m, _ := t.Date(); y != year || m != month {
			continue
		}
		total += e.Amount
		id := e.Category.ID
		if _, ok := sums[id]; !ok {
			order = append(order, id)
		}
		sums[id] += e.Amount
	}

	breakdown := make([]CategoryTotal, 0, len(order))
	for _, id := range order {
		amount := sums[id]
		var pct float64
		if total > 0 {
			pct = amount / total * 100
		}
		// The catalog is re-consulted so labels follow the current catalog,
		// not the copy embedded in the record.
		breakdown = append(breakdown, CategoryTotal{
			Category:   core.LookupCategory(id),
			Amount:     amount,
			Percentage: pct,
		})
	}
	sort.SliceStable(breakdown, func(i, j int) bool {
		return breakdown[i].Amount > breakdown[j].Amount
	})
	return total, breakdown
}

// recent keeps store order and includes records exactly RecentWindowDays old.
func recent(expenses []core.Expense, dates []time.Time, now time.Time) []core.Expense {
	cutoff := now.AddDate(0, 0, -RecentWindowDays)
	out := make([]core.Expense, 0, RecentLimit)
	for i, e := range expenses {
		if len(out) == RecentLimit {
			break
		}
		t := dates[i]
		if t.IsZero() || t.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func daily(expenses []core.Expense, dates []time.Time, now time.Time) []DailyTotal {
	today := core.StartOfDay(now)
	buckets := make([]DailyTotal, DailyWindowDays)
	index := make(map[string]int, DailyWindowDays)
	for i := 0; i < DailyWindowDays; i++ {
		key := core.DayKey(today.AddDate(0, 0, i-(DailyWindowDays-1)))
		buckets[i] = DailyTotal{Date: key}
		index[key] = i
	}

	for i, e := range expenses {
		t := dates[i]
		if t.IsZero() {
			continue
		}
		if idx, ok := index[core.DayKey(t)]; ok {
			buckets[idx].Amount += e.Amount
		}
	}
	return buckets
}
