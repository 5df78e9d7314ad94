package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"expensetracker/internal/analytics"
	"expensetracker/internal/core"
)

const barWidth = 24

var (
	primaryColor = lipgloss.Color("#4ECDC4")
	successColor = lipgloss.Color("#96CEB4")
	errorColor   = lipgloss.Color("#FF6B6B")
	subtleColor  = lipgloss.Color("#666666")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(subtleColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtleColor).
			Padding(0, 1)
)

func formatSuccess(msg string) string {
	return successStyle.Render("✓ " + msg)
}

func formatError(msg string) string {
	return errorStyle.Render("✗ " + msg)
}

// renderExpenses writes one row per expense followed by the count and total.
func renderExpenses(w io.Writer, res analytics.FilterResult, currency string, loc *time.Location) {
	if res.Count == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No expenses found."))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("ID"),
		headerStyle.Render("Date"),
		headerStyle.Render("Category"),
		headerStyle.Render("Amount"),
		headerStyle.Render("Description"))
	for _, e := range res.Expenses {
		desc := e.Description
		if e.IsAIGenerated {
			desc += " " + subtleStyle.Render("(receipt)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\n",
			e.ID,
			displayDate(e.Date, loc),
			e.Category.Icon, e.Category.Name,
			core.FormatCurrency(e.Amount, currency),
			desc)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d expenses, total %s\n", res.Count, titleStyle.Render(core.FormatCurrency(res.Total, currency)))
}

// renderAnalytics draws the dashboard: month total, breakdown bars, the last
// seven days and the recent list.
func renderAnalytics(w io.Writer, s analytics.Snapshot, in analytics.Insights, currency string, loc *time.Location) {
	var b strings.Builder

	b.WriteString(titleStyle.Render("This month") + "\n")
	b.WriteString(core.FormatCurrency(s.TotalThisMonth, currency))
	if in.AverageDaily > 0 {
		b.WriteString(subtleStyle.Render(fmt.Sprintf("  (%s per day)", core.FormatCurrency(in.AverageDaily, currency))))
	}
	b.WriteString("\n")
	if in.TopCategory != nil {
		fmt.Fprintf(&b, "Top category: %s %s\n", in.TopCategory.Category.Icon, in.TopCategory.Category.Name)
	}
	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))

	if len(s.CategoryBreakdown) > 0 {
		fmt.Fprintln(w, titleStyle.Render("By category"))
		for _, ct := range s.CategoryBreakdown {
			bar := lipgloss.NewStyle().
				Foreground(lipgloss.Color(ct.Category.Color)).
				Render(strings.Repeat("█", barLength(ct.Percentage)))
			fmt.Fprintf(w, "  %-20s %s %5.1f%%  %s\n",
				ct.Category.Name, padRight(bar, barLength(ct.Percentage)), ct.Percentage,
				core.FormatCurrency(ct.Amount, currency))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, titleStyle.Render("Last 7 days"))
	for _, d := range s.DailySpending {
		fmt.Fprintf(w, "  %s  %s\n", d.Date, core.FormatCurrency(d.Amount, currency))
	}

	if len(s.RecentExpenses) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Recent"))
		for _, e := range s.RecentExpenses {
			fmt.Fprintf(w, "  %s  %s %s  %s\n",
				displayDate(e.Date, loc), e.Category.Icon, e.Description,
				core.FormatCurrency(e.Amount, currency))
		}
	}
}

func renderPreferences(w io.Writer, p core.Preferences) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", headerStyle.Render("currency"), p.Currency)
	fmt.Fprintf(tw, "%s\t%s\n", headerStyle.Render("language"), p.Language)
	fmt.Fprintf(tw, "%s\t%s\n", headerStyle.Render("theme"), p.Theme)
	fmt.Fprintf(tw, "%s\t%t\n", headerStyle.Render("notifications"), p.Notifications)
	fmt.Fprintf(tw, "%s\t%t\n", headerStyle.Render("backup"), p.Backup)
	tw.Flush()
}

func barLength(pct float64) int {
	n := int(pct / 100 * barWidth)
	if n < 1 && pct > 0 {
		n = 1
	}
	return n
}

// padRight pads a rendered bar of n cells to the full bar width.
func padRight(s string, n int) string {
	if n >= barWidth {
		return s
	}
	return s + strings.Repeat(" ", barWidth-n)
}

// displayDate shows the local calendar day of a stored timestamp.
func displayDate(s string, loc *time.Location) string {
	t, err := core.ParseDate(s, loc)
	if err != nil {
		return s
	}
	return t.Format(time.DateOnly)
}
