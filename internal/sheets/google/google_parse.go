package google

import (
	"fmt"
	"strconv"
	"strings"

	"expensetracker/internal/core"
)

// expenseRow lays an expense out in Header column order.
func expenseRow(e core.Expense) []any {
	ai := ""
	if e.IsAIGenerated {
		ai = "yes"
	}
	return []any{e.ID, e.Date, e.Description, e.Amount, e.Category.ID, ai, e.ImageURI}
}

// parseRows converts a values matrix back into expenses. The header row and
// rows that fail validation are skipped; the second result counts the latter.
func parseRows(values [][]any) ([]core.Expense, int) {
	out := make([]core.Expense, 0, len(values))
	skipped := 0
	for i, row := range values {
		cols := toStrings(row)
		if i == 0 && len(cols) > 0 && strings.EqualFold(cols[0], "ID") {
			continue
		}
		if len(cols) < 5 {
			skipped++
			continue
		}
		amount, ok := parseAmount(cols[3])
		if !ok {
			skipped++
			continue
		}
		e := core.Expense{
			ID:          cols[0],
			Date:        cols[1],
			Description: cols[2],
			Amount:      amount,
			Category:    core.LookupCategory(cols[4]),
		}
		if len(cols) > 5 {
			e.IsAIGenerated = strings.EqualFold(cols[5], "yes")
		}
		if len(cols) > 6 {
			e.ImageURI = cols[6]
		}
		if e.Validate() != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, skipped
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// parseAmount accepts both decimal separators, as sheets in some locales
// render numbers with a comma.
func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !core.ValidAmount(f) {
		return 0, false
	}
	return f, true
}
