package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	"github.com/couchcryptid/outbreak-dashboard/internal/format"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dashboard is the view state the API reads and drives.
type Dashboard interface {
	sharedobs.ReadinessChecker
	State() domain.SelectionState
	Table() (domain.RankedTable, bool)
	Chart() (domain.DeltaSeries, bool)
	RegionOptions() []domain.RegionOption
	MapView() domain.MapView
	SelectRegion(ctx context.Context, code string) (domain.SelectionState, error)
	SetMetric(ctx context.Context, m domain.Metric) (domain.SelectionState, error)
}

// Server exposes the widget API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	dash       Dashboard
	formatter  *format.Formatter
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and the
// /api/v1 routes.
func NewServer(addr string, dash Dashboard, formatter *format.Formatter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		dash:      dash,
		formatter: formatter,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(dash))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/state", s.handleState)
	mux.HandleFunc("PUT /api/v1/region", s.handleSelectRegion)
	mux.HandleFunc("PUT /api/v1/metric", s.handleSetMetric)
	mux.HandleFunc("GET /api/v1/table", s.handleTable)
	mux.HandleFunc("GET /api/v1/chart", s.handleChart)
	mux.HandleFunc("GET /api/v1/regions", s.handleRegions)
	mux.HandleFunc("GET /api/v1/map", s.handleMap)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
