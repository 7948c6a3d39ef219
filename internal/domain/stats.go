package domain

import (
	"fmt"
	"strings"
	"time"
)

// RegionWorldwide is the reserved region code for the global aggregate.
const RegionWorldwide = "worldwide"

// NormalizeRegion canonicalizes a region code. The worldwide sentinel matches
// case-insensitively; country codes are upper-cased.
func NormalizeRegion(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRegion)
	}
	if strings.EqualFold(code, RegionWorldwide) {
		return RegionWorldwide, nil
	}
	if strings.ContainsAny(code, "/?#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRegion, code)
	}
	return strings.ToUpper(code), nil
}

// Metrics is a snapshot of the six headline statistics. A nil field means the
// upstream did not report it.
type Metrics struct {
	Cases          *int64 `json:"cases,omitempty"`
	TodayCases     *int64 `json:"todayCases,omitempty"`
	Recovered      *int64 `json:"recovered,omitempty"`
	TodayRecovered *int64 `json:"todayRecovered,omitempty"`
	Deaths         *int64 `json:"deaths,omitempty"`
	TodayDeaths    *int64 `json:"todayDeaths,omitempty"`
}

// Total returns the cumulative value for m.
func (s Metrics) Total(m Metric) *int64 {
	switch m {
	case MetricCases:
		return s.Cases
	case MetricRecovered:
		return s.Recovered
	case MetricDeaths:
		return s.Deaths
	}
	return nil
}

// Today returns the value reported for the current day for m.
func (s Metrics) Today(m Metric) *int64 {
	switch m {
	case MetricCases:
		return s.TodayCases
	case MetricRecovered:
		return s.TodayRecovered
	case MetricDeaths:
		return s.TodayDeaths
	}
	return nil
}

// Coordinates is a WGS-84 map position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CountryRecord is one entry of the country list. Records are never mutated
// after decoding; a refresh replaces the whole list.
type CountryRecord struct {
	Name        string       `json:"name"`
	RegionCode  string       `json:"regionCode"`
	Metrics     Metrics      `json:"metrics"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Summary is the current snapshot for the world or a single region.
type Summary struct {
	Region      string       `json:"region"`
	Metrics     Metrics      `json:"metrics"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Updated     time.Time    `json:"updated,omitzero"`
}

// RankedTable is the country list ordered by descending case count.
type RankedTable struct {
	Countries []CountryRecord `json:"countries"`
	UpdatedAt time.Time       `json:"updatedAt,omitzero"`
}

// Int64 returns a pointer to v. Handy for building Metrics literals.
func Int64(v int64) *int64 { return &v }
