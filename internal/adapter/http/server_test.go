package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/outbreak-dashboard/internal/adapter/http"
	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	"github.com/couchcryptid/outbreak-dashboard/internal/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

type mockDashboard struct {
	readyErr  error
	state     domain.SelectionState
	table     *domain.RankedTable
	chart     *domain.DeltaSeries
	options   []domain.RegionOption
	mapView   domain.MapView
	selectErr error
	gotRegion string
	gotMetric domain.Metric
}

func (m *mockDashboard) CheckReadiness(_ context.Context) error { return m.readyErr }
func (m *mockDashboard) State() domain.SelectionState           { return m.state }
func (m *mockDashboard) RegionOptions() []domain.RegionOption   { return m.options }
func (m *mockDashboard) MapView() domain.MapView                { return m.mapView }

func (m *mockDashboard) Table() (domain.RankedTable, bool) {
	if m.table == nil {
		return domain.RankedTable{}, false
	}
	return *m.table, true
}

func (m *mockDashboard) Chart() (domain.DeltaSeries, bool) {
	if m.chart == nil {
		return domain.DeltaSeries{}, false
	}
	return *m.chart, true
}

func (m *mockDashboard) SelectRegion(_ context.Context, code string) (domain.SelectionState, error) {
	m.gotRegion = code
	if m.selectErr != nil {
		return domain.SelectionState{}, m.selectErr
	}
	s := m.state
	s.RegionCode = strings.ToUpper(code)
	return s, nil
}

func (m *mockDashboard) SetMetric(_ context.Context, metric domain.Metric) (domain.SelectionState, error) {
	m.gotMetric = metric
	s := m.state
	s.DisplayedMetric = metric
	return s, nil
}

func worldState() domain.SelectionState {
	return domain.SelectionState{
		RegionCode: domain.RegionWorldwide,
		Summary: domain.Summary{
			Region: domain.RegionWorldwide,
			Metrics: domain.Metrics{
				Cases:      domain.Int64(1234567),
				TodayCases: domain.Int64(4321),
				Deaths:     domain.Int64(8910),
			},
		},
		MapCenter:       domain.Coordinates{Lat: 34.80746, Lng: -40.4796},
		MapZoom:         3,
		DisplayedMetric: domain.MetricCases,
		Version:         1,
	}
}

func newTestServer(dash *mockDashboard) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", dash, format.New(language.English), logger)
}

func do(t *testing.T, srv *httpadapter.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(&mockDashboard{}), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(t, newTestServer(&mockDashboard{}), http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(t, newTestServer(&mockDashboard{readyErr: fmt.Errorf("summary has not been loaded yet")}),
		http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "summary has not been loaded yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(&mockDashboard{}), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

type tileBody struct {
	Metric string `json:"metric"`
	Title  string `json:"title"`
	Today  string `json:"today"`
	Total  string `json:"total"`
	Active bool   `json:"active"`
}

type stateBody struct {
	Selection domain.SelectionState `json:"selection"`
	Tiles     []tileBody            `json:"tiles"`
}

func TestState_FormatsTiles(t *testing.T) {
	rec := do(t, newTestServer(&mockDashboard{state: worldState()}), http.MethodGet, "/api/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body stateBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, domain.RegionWorldwide, body.Selection.RegionCode)
	assert.Equal(t, []tileBody{
		{Metric: "cases", Title: "Coronavirus cases", Today: "4,321", Total: "1,234,567", Active: true},
		{Metric: "recovered", Title: "Recovered", Today: "N/A", Total: "N/A"},
		{Metric: "deaths", Title: "Deaths", Today: "N/A", Total: "8,910"},
	}, body.Tiles)
}

func TestSelectRegion_Success(t *testing.T) {
	dash := &mockDashboard{state: worldState()}
	rec := do(t, newTestServer(dash), http.MethodPut, "/api/v1/region", `{"region":"fr"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fr", dash.gotRegion)

	var body stateBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FR", body.Selection.RegionCode)
}

func TestSelectRegion_ErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid region", fmt.Errorf("%w: empty", domain.ErrInvalidRegion), http.StatusBadRequest},
		{"superseded", domain.ErrSuperseded, http.StatusConflict},
		{"fetch failure", &domain.FetchError{Query: domain.QuerySummary, Region: "ZZ", Err: fmt.Errorf("status 404")}, http.StatusBadGateway},
		{"not running", domain.ErrNotRunning, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dash := &mockDashboard{state: worldState(), selectErr: tc.err}
			rec := do(t, newTestServer(dash), http.MethodPut, "/api/v1/region", `{"region":"ZZ"}`)

			assert.Equal(t, tc.want, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.err.Error(), body["error"])
		})
	}
}

func TestSelectRegion_BadBody(t *testing.T) {
	rec := do(t, newTestServer(&mockDashboard{}), http.MethodPut, "/api/v1/region", `{"region":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectRegion_WrongMethod(t *testing.T) {
	rec := do(t, newTestServer(&mockDashboard{}), http.MethodPost, "/api/v1/region", `{"region":"FR"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSetMetric(t *testing.T) {
	dash := &mockDashboard{state: worldState()}
	rec := do(t, newTestServer(dash), http.MethodPut, "/api/v1/metric", `{"metric":"Deaths"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MetricDeaths, dash.gotMetric)

	var body stateBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.MetricDeaths, body.Selection.DisplayedMetric)
	assert.True(t, body.Tiles[2].Active)
	assert.False(t, body.Tiles[0].Active)
}

func TestSetMetric_Unknown(t *testing.T) {
	dash := &mockDashboard{state: worldState()}
	rec := do(t, newTestServer(dash), http.MethodPut, "/api/v1/metric", `{"metric":"vaccinated"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, dash.gotMetric, "engine is not called")
}

func TestTable(t *testing.T) {
	dash := &mockDashboard{table: &domain.RankedTable{
		Countries: []domain.CountryRecord{
			{Name: "USA", RegionCode: "US", Metrics: domain.Metrics{Cases: domain.Int64(12000)}},
			{Name: "Diamond Princess"},
		},
		UpdatedAt: time.Date(2021, time.January, 10, 12, 0, 0, 0, time.UTC),
	}}
	rec := do(t, newTestServer(dash), http.MethodGet, "/api/v1/table", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rows []struct {
			Name       string `json:"name"`
			RegionCode string `json:"regionCode"`
			Cases      *int64 `json:"cases"`
			CasesLabel string `json:"casesLabel"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 2)
	assert.Equal(t, "12,000", body.Rows[0].CasesLabel)
	assert.Equal(t, int64(12000), *body.Rows[0].Cases)
	assert.Nil(t, body.Rows[1].Cases)
	assert.Equal(t, "N/A", body.Rows[1].CasesLabel)
}

func TestTable_NotLoaded(t *testing.T) {
	rec := do(t, newTestServer(&mockDashboard{}), http.MethodGet, "/api/v1/table", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChart(t *testing.T) {
	dash := &mockDashboard{chart: &domain.DeltaSeries{
		Metric: domain.MetricCases,
		Points: []domain.DeltaPoint{{Date: "1/2/21", Delta: 50}, {Date: "1/3/21", Delta: -20}, {Date: "1/4/21", Delta: 12400}},
	}}
	rec := do(t, newTestServer(dash), http.MethodGet, "/api/v1/chart", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Title  string `json:"title"`
		Points []struct {
			Date  string `json:"date"`
			Delta int64  `json:"delta"`
			Label string `json:"label"`
			Short string `json:"short"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Worldwide new cases", body.Title)
	require.Len(t, body.Points, 3)
	assert.Equal(t, "+50.0", body.Points[0].Label)
	assert.Equal(t, "-20.0", body.Points[1].Label)
	assert.Equal(t, "+12,400.0", body.Points[2].Label)
	assert.Equal(t, "12k", body.Points[2].Short)
}

func TestChart_NotLoaded(t *testing.T) {
	rec := do(t, newTestServer(&mockDashboard{}), http.MethodGet, "/api/v1/chart", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegions(t *testing.T) {
	dash := &mockDashboard{options: []domain.RegionOption{
		{Name: "Worldwide", Value: domain.RegionWorldwide},
		{Name: "France", Value: "FR"},
	}}
	rec := do(t, newTestServer(dash), http.MethodGet, "/api/v1/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []domain.RegionOption
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, dash.options, body)
}

func TestMap(t *testing.T) {
	dash := &mockDashboard{mapView: domain.MapView{
		Center: domain.Coordinates{Lat: 48.8, Lng: 2.3},
		Zoom:   4,
		Metric: domain.MetricCases,
		Markers: []domain.MapMarker{
			{Name: "France", RegionCode: "FR", Center: domain.Coordinates{Lat: 48.8, Lng: 2.3}, Value: 3000, Radius: 43817.8, Color: "#CC1034", Label: "3k"},
		},
	}}
	rec := do(t, newTestServer(dash), http.MethodGet, "/api/v1/map", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body domain.MapView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, dash.mapView, body)
}
