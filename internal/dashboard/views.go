package dashboard

import (
	"math"

	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	"github.com/couchcryptid/outbreak-dashboard/internal/format"
)

type markerStyle struct {
	multiplier float64
	color      string
}

var markerStyles = map[domain.Metric]markerStyle{
	domain.MetricCases:     {multiplier: 800, color: "#CC1034"},
	domain.MetricRecovered: {multiplier: 1200, color: "#7dd71d"},
	domain.MetricDeaths:    {multiplier: 2000, color: "#fb4443"},
}

// Markers builds one circle per country that has coordinates, sized by the
// square root of the metric total.
func Markers(records []domain.CountryRecord, metric domain.Metric) []domain.MapMarker {
	style, ok := markerStyles[metric]
	if !ok {
		style = markerStyles[domain.MetricCases]
	}

	out := make([]domain.MapMarker, 0, len(records))
	for _, r := range records {
		if r.Coordinates == nil {
			continue
		}
		var v int64
		if p := r.Metrics.Total(metric); p != nil {
			v = *p
		}
		out = append(out, domain.MapMarker{
			Name:       r.Name,
			RegionCode: r.RegionCode,
			Center:     *r.Coordinates,
			Value:      v,
			Radius:     math.Sqrt(float64(max(v, 0))) * style.multiplier,
			Color:      style.color,
			Label:      format.Compact(float64(v)),
		})
	}
	return out
}

// RegionOptions lists the dropdown entries: worldwide first, then every
// country with an ISO code in upstream order.
func RegionOptions(records []domain.CountryRecord) []domain.RegionOption {
	out := make([]domain.RegionOption, 0, len(records)+1)
	out = append(out, domain.RegionOption{Name: "Worldwide", Value: domain.RegionWorldwide})
	for _, r := range records {
		if r.RegionCode == "" {
			continue
		}
		out = append(out, domain.RegionOption{Name: r.Name, Value: r.RegionCode})
	}
	return out
}
