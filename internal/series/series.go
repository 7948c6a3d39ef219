// Package series converts cumulative timelines into day-over-day chart data.
package series

import "github.com/couchcryptid/outbreak-dashboard/internal/domain"

// BuildDeltas walks the cumulative series in insertion order and emits
// current-minus-previous for every entry after the first. The first entry has
// no predecessor and produces no point. Negative deltas are upstream
// corrections and are kept as-is.
func BuildDeltas(cumulative *domain.CumulativeSeries, metric domain.Metric) domain.DeltaSeries {
	out := domain.DeltaSeries{Metric: metric, Points: []domain.DeltaPoint{}}
	if cumulative == nil || cumulative.Len() < 2 {
		return out
	}

	out.Points = make([]domain.DeltaPoint, 0, cumulative.Len()-1)
	prev := cumulative.Oldest()
	for cur := prev.Next(); cur != nil; cur = cur.Next() {
		out.Points = append(out.Points, domain.DeltaPoint{
			Date:  cur.Key,
			Delta: cur.Value - prev.Value,
		})
		prev = cur
	}
	return out
}

// FromTimeline builds the delta series for one metric of a timeline.
func FromTimeline(tl domain.Timeline, metric domain.Metric) domain.DeltaSeries {
	return BuildDeltas(tl.Series(metric), metric)
}
