package domain

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CumulativeSeries maps a date key to a running total. Iteration follows
// insertion order, which is chronological for upstream timelines.
type CumulativeSeries = orderedmap.OrderedMap[string, int64]

// CumulativePoint is a single (date, running total) pair.
type CumulativePoint struct {
	Date  string
	Total int64
}

// NewCumulativeSeries builds a series from points in the given order.
func NewCumulativeSeries(points ...CumulativePoint) *CumulativeSeries {
	s := orderedmap.New[string, int64](len(points))
	for _, p := range points {
		s.Set(p.Date, p.Total)
	}
	return s
}

// Timeline holds the cumulative worldwide series per metric.
type Timeline struct {
	Cases     *CumulativeSeries `json:"cases"`
	Deaths    *CumulativeSeries `json:"deaths"`
	Recovered *CumulativeSeries `json:"recovered"`
}

// Series returns the cumulative series for m, or nil if the timeline lacks it.
func (t Timeline) Series(m Metric) *CumulativeSeries {
	switch m {
	case MetricCases:
		return t.Cases
	case MetricRecovered:
		return t.Recovered
	case MetricDeaths:
		return t.Deaths
	}
	return nil
}

// DeltaPoint is the day-over-day change of a cumulative metric.
type DeltaPoint struct {
	Date  string `json:"date"`
	Delta int64  `json:"delta"`
}

// DeltaSeries is the chart series for a single metric. It is one point
// shorter than the cumulative series it came from.
type DeltaSeries struct {
	Metric    Metric       `json:"metric"`
	Points    []DeltaPoint `json:"points"`
	UpdatedAt time.Time    `json:"updatedAt,omitzero"`
}
