// Package ranking orders the country list for the "live cases by country"
// table.
package ranking

import (
	"slices"
	"sort"

	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
)

// Rank returns a copy of countries sorted by descending total cases. Records
// without a case count rank as if they had zero. Ties keep their input order.
func Rank(countries []domain.CountryRecord) []domain.CountryRecord {
	return RankBy(countries, domain.MetricCases)
}

// RankBy is Rank for an arbitrary metric total.
func RankBy(countries []domain.CountryRecord, metric domain.Metric) []domain.CountryRecord {
	ranked := slices.Clone(countries)
	if len(ranked) < 2 {
		return ranked
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return total(ranked[i], metric) > total(ranked[j], metric)
	})
	return ranked
}

func total(r domain.CountryRecord, metric domain.Metric) int64 {
	if v := r.Metrics.Total(metric); v != nil {
		return *v
	}
	return 0
}
