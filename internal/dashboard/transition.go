package dashboard

import "github.com/couchcryptid/outbreak-dashboard/internal/domain"

// View holds the map defaults used when deriving a selection.
type View struct {
	DefaultCenter domain.Coordinates
	WorldZoom     int
	RegionZoom    int
}

// InitialState is the selection shown before anything has been fetched:
// worldwide, default center, world zoom, cases.
func InitialState(v View) domain.SelectionState {
	return domain.SelectionState{
		RegionCode:      domain.RegionWorldwide,
		Summary:         domain.Summary{Region: domain.RegionWorldwide},
		MapCenter:       v.DefaultCenter,
		MapZoom:         v.WorldZoom,
		DisplayedMetric: domain.MetricCases,
	}
}

// RegionSelected derives the selection after a successful summary fetch.
// The map centers on the region when the summary carries coordinates and
// falls back to the default center and world zoom otherwise. The displayed
// metric is carried over from prev.
func RegionSelected(prev domain.SelectionState, region string, summary domain.Summary, v View) domain.SelectionState {
	next := prev
	next.RegionCode = region
	next.Summary = summary
	next.MapCenter = v.DefaultCenter
	next.MapZoom = v.WorldZoom
	if region != domain.RegionWorldwide && summary.Coordinates != nil {
		next.MapCenter = *summary.Coordinates
		next.MapZoom = v.RegionZoom
	}
	return next
}

// MetricChanged swaps the displayed metric and leaves everything else alone.
func MetricChanged(prev domain.SelectionState, m domain.Metric) domain.SelectionState {
	next := prev
	next.DisplayedMetric = m
	return next
}
