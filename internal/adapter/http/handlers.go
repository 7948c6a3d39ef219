package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	"github.com/couchcryptid/outbreak-dashboard/internal/format"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const maxBodyBytes = 1 << 10

// --- response bodies ---

type tile struct {
	Metric domain.Metric `json:"metric"`
	Title  string        `json:"title"`
	Today  string        `json:"today"`
	Total  string        `json:"total"`
	Active bool          `json:"active"`
}

type stateResponse struct {
	Selection domain.SelectionState `json:"selection"`
	Tiles     []tile                `json:"tiles"`
}

type tableRow struct {
	Name       string `json:"name"`
	RegionCode string `json:"regionCode,omitempty"`
	Cases      *int64 `json:"cases"`
	CasesLabel string `json:"casesLabel"`
}

type tableResponse struct {
	Rows      []tableRow `json:"rows"`
	UpdatedAt time.Time  `json:"updatedAt,omitzero"`
}

type chartPoint struct {
	Date  string `json:"date"`
	Delta int64  `json:"delta"`
	Label string `json:"label"`
	Short string `json:"short"`
}

type chartResponse struct {
	Title     string        `json:"title"`
	Metric    domain.Metric `json:"metric"`
	Points    []chartPoint  `json:"points"`
	UpdatedAt time.Time     `json:"updatedAt,omitzero"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- handlers ---

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.stateBody(s.dash.State()))
}

func (s *Server) handleSelectRegion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Region string `json:"region"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	state, err := s.dash.SelectRegion(r.Context(), req.Region)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.stateBody(state))
}

func (s *Server) handleSetMetric(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metric string `json:"metric"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	m, err := domain.ParseMetric(req.Metric)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state, err := s.dash.SetMetric(r.Context(), m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.stateBody(state))
}

func (s *Server) handleTable(w http.ResponseWriter, _ *http.Request) {
	table, ok := s.dash.Table()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "country table not loaded yet"})
		return
	}

	rows := make([]tableRow, 0, len(table.Countries))
	for _, c := range table.Countries {
		rows = append(rows, tableRow{
			Name:       c.Name,
			RegionCode: c.RegionCode,
			Cases:      c.Metrics.Cases,
			CasesLabel: s.formatter.Stat(c.Metrics.Cases),
		})
	}
	sharedobs.WriteJSON(w, http.StatusOK, tableResponse{Rows: rows, UpdatedAt: table.UpdatedAt})
}

func (s *Server) handleChart(w http.ResponseWriter, _ *http.Request) {
	chart, ok := s.dash.Chart()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "chart not loaded yet"})
		return
	}

	points := make([]chartPoint, 0, len(chart.Points))
	for _, p := range chart.Points {
		points = append(points, chartPoint{
			Date:  p.Date,
			Delta: p.Delta,
			Label: s.formatter.Signed(float64(p.Delta)),
			Short: format.Compact(float64(p.Delta)),
		})
	}
	sharedobs.WriteJSON(w, http.StatusOK, chartResponse{
		Title:     "Worldwide new " + string(chart.Metric),
		Metric:    chart.Metric,
		Points:    points,
		UpdatedAt: chart.UpdatedAt,
	})
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.dash.RegionOptions())
}

func (s *Server) handleMap(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.dash.MapView())
}

// --- helpers ---

func (s *Server) stateBody(state domain.SelectionState) stateResponse {
	tiles := make([]tile, 0, len(domain.AllMetrics))
	for _, m := range domain.AllMetrics {
		tiles = append(tiles, tile{
			Metric: m,
			Title:  m.Title(),
			Today:  s.formatter.Stat(state.Summary.Metrics.Today(m)),
			Total:  s.formatter.Stat(state.Summary.Metrics.Total(m)),
			Active: m == state.DisplayedMetric,
		})
	}
	return stateResponse{Selection: state, Tiles: tiles}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	sharedobs.WriteJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRegion), errors.Is(err, domain.ErrUnknownMetric):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
