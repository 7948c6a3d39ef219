package domain

import (
	"fmt"
	"strings"
)

// Metric names one of the statistics a user can display on the map and chart.
type Metric string

const (
	MetricCases     Metric = "cases"
	MetricRecovered Metric = "recovered"
	MetricDeaths    Metric = "deaths"
)

// AllMetrics lists every displayable metric in tile order.
var AllMetrics = []Metric{MetricCases, MetricRecovered, MetricDeaths}

// ParseMetric validates a metric name. Matching is case-insensitive.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// Valid reports whether m is one of the known metrics.
func (m Metric) Valid() bool {
	switch m {
	case MetricCases, MetricRecovered, MetricDeaths:
		return true
	}
	return false
}

// Title is the tile heading for the metric.
func (m Metric) Title() string {
	switch m {
	case MetricCases:
		return "Coronavirus cases"
	case MetricRecovered:
		return "Recovered"
	case MetricDeaths:
		return "Deaths"
	}
	return string(m)
}
