package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"expensetracker/internal/core"
)

func TestLatestByID(t *testing.T) {
	row := func(id string, amount float64) core.Expense {
		return core.Expense{ID: id, Amount: amount, Description: "x", Category: core.LookupCategory("food"), Date: "2025-03-01"}
	}

	got := LatestByID([]core.Expense{row("a", 1), row("b", 2), row("a", 3), row("c", 4), row("a", 5)})

	assert.Equal(t, []core.Expense{row("a", 5), row("b", 2), row("c", 4)}, got)
	assert.Empty(t, LatestByID(nil))
}
