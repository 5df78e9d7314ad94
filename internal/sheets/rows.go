package sheets

import "expensetracker/internal/core"

// LatestByID collapses rows sharing an id. The last row wins and keeps the
// position of the first one, so a sheet that received the same record twice
// still restores as a valid list.
func LatestByID(rows []core.Expense) []core.Expense {
	index := make(map[string]int, len(rows))
	out := make([]core.Expense, 0, len(rows))
	for _, e := range rows {
		if i, ok := index[e.ID]; ok {
			out[i] = e
			continue
		}
		index[e.ID] = len(out)
		out = append(out, e)
	}
	return out
}
