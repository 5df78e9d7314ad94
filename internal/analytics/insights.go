package analytics

import "time"

// Insights are the short hints shown under the analytics charts.
type Insights struct {
	TopCategory  *CategoryTotal `json:"topCategory,omitempty"`
	AverageDaily float64        `json:"averageDaily"`
}

// ComputeInsights derives insights from a snapshot computed for now.
func ComputeInsights(s Snapshot, now time.Time) Insights {
	var in Insights
	if len(s.CategoryBreakdown) > 0 {
		top := s.CategoryBreakdown[0]
		in.TopCategory = &top
	}
	if s.TotalThisMonth > 0 {
		in.AverageDaily = s.TotalThisMonth / float64(now.Day())
	}
	return in
}
