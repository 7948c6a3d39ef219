package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "outbreak_dashboard"

// Metrics holds the Prometheus counters, histograms, and gauges for the dashboard.
type Metrics struct {
	EngineRunning prometheus.Gauge

	// Upstream API metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: query={summary,countries,historical}, outcome={success,error}
	UpstreamDuration *prometheus.HistogramVec // labels: query
	UpstreamRetries  *prometheus.CounterVec   // labels: query
	UpstreamCache    *prometheus.CounterVec   // labels: query, result={hit,miss}

	// View state metrics.
	StateCommits   *prometheus.CounterVec // labels: kind={selection,table,chart}
	StaleResponses *prometheus.CounterVec // labels: kind
	FetchFailures  *prometheus.CounterVec // labels: kind

	// Kafka fan-out metrics.
	ViewUpdatesPublished prometheus.Counter
	ViewUpdatesDropped   prometheus.Counter
	PublishErrors        prometheus.Counter
}

// NewMetrics creates and registers all dashboard metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EngineRunning,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.UpstreamRetries,
		m.UpstreamCache,
		m.StateCommits,
		m.StaleResponses,
		m.FetchFailures,
		m.ViewUpdatesPublished,
		m.ViewUpdatesDropped,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_running",
			Help:      "1 while the dashboard engine loop is active, 0 otherwise.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream API queries by query and outcome, after retries.",
		}, []string{"query", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream API query duration in seconds, including retries.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"query"}),
		UpstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Upstream request retries by query.",
		}, []string{"query"}),
		UpstreamCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_cache_total",
			Help:      "Upstream cache lookups by query and result.",
		}, []string{"query", "result"}),
		StateCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_commits_total",
			Help:      "Committed view values by kind.",
		}, []string{"kind"}),
		StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Fetch results discarded because a newer request superseded them.",
		}, []string{"kind"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Fetches that failed and left the previous value in place.",
		}, []string{"kind"}),
		ViewUpdatesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_updates_published_total",
			Help:      "View updates written to the fan-out topic.",
		}),
		ViewUpdatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_updates_dropped_total",
			Help:      "View updates dropped because the publish buffer was full.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed writes to the fan-out topic.",
		}),
	}
}
