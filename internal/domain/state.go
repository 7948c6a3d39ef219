package domain

import "time"

// SelectionState is everything the display widgets need to agree on. It is
// only ever replaced as a whole; consumers never see a summary for one region
// paired with the map position of another.
type SelectionState struct {
	RegionCode      string      `json:"regionCode"`
	Summary         Summary     `json:"summary"`
	MapCenter       Coordinates `json:"mapCenter"`
	MapZoom         int         `json:"mapZoom"`
	DisplayedMetric Metric      `json:"displayedMetric"`

	// Version increases by one on every commit.
	Version     uint64    `json:"version"`
	CommittedAt time.Time `json:"committedAt,omitzero"`
}

// RegionOption is one entry of the region dropdown.
type RegionOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MapMarker is a circle drawn over a country, sized by the displayed metric.
type MapMarker struct {
	Name       string      `json:"name"`
	RegionCode string      `json:"regionCode"`
	Center     Coordinates `json:"center"`
	Value      int64       `json:"value"`
	Radius     float64     `json:"radius"`
	Color      string      `json:"color"`
	Label      string      `json:"label"`
}

// MapView pairs the markers with the center and zoom of the same selection.
type MapView struct {
	Center  Coordinates `json:"center"`
	Zoom    int         `json:"zoom"`
	Metric  Metric      `json:"metric"`
	Markers []MapMarker `json:"markers"`
}

// View update kinds.
const (
	UpdateSelection = "selection"
	UpdateTable     = "table"
	UpdateChart     = "chart"
)

// ViewUpdate announces a committed value to out-of-process widgets. Exactly one
// of Selection, Table and Chart is set, matching Kind.
type ViewUpdate struct {
	Kind        string          `json:"kind"`
	Version     uint64          `json:"version"`
	Selection   *SelectionState `json:"selection,omitempty"`
	Table       *RankedTable    `json:"table,omitempty"`
	Chart       *DeltaSeries    `json:"chart,omitempty"`
	CommittedAt time.Time       `json:"committedAt"`
}
