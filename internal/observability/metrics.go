package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "protest_map"

// Metrics holds the Prometheus counters, histograms, and gauges for the dashboard.
type Metrics struct {
	// Filter and render.
	ScenesRendered prometheus.Counter
	SceneMarkers   prometheus.Histogram
	FilterErrors   prometheus.Counter

	// Sessions and animation.
	Transitions     *prometheus.CounterVec // labels: event={press,tick,scrub,category}
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter

	// Dataset.
	DatasetRecords     prometheus.Gauge
	DatasetWeeks       prometheus.Gauge
	DatasetDroppedRows prometheus.Gauge

	// Geocoding of rows without coordinates.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Transition sink.
	TransitionsPublished prometheus.Counter
	TransitionsDropped   prometheus.Counter
	TransitionsDelivered prometheus.Counter
	PublishErrors        prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		ScenesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenes_rendered_total",
			Help:      "Total map scenes rendered.",
		}),
		SceneMarkers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scene_markers",
			Help:      "Number of markers per rendered scene.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		FilterErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_errors_total",
			Help:      "Total filter requests rejected for an unknown category.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Session state transitions by event.",
		}, []string{"event"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Viewer sessions currently open.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total viewer sessions created.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Total viewer sessions closed for inactivity.",
		}),
		DatasetRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_records",
			Help:      "Protest records loaded at startup.",
		}),
		DatasetWeeks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_weeks",
			Help:      "Distinct weeks on the time slider.",
		}),
		DatasetDroppedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_dropped_rows",
			Help:      "Rows skipped at load time for lack of usable coordinates.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		TransitionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_published_total",
			Help:      "Session transitions accepted by the transition sink.",
		}),
		TransitionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_dropped_total",
			Help:      "Session transitions dropped because the publish queue was full.",
		}),
		TransitionsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_delivered_total",
			Help:      "Session transitions acknowledged by the broker.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Session transitions the sink failed to accept or deliver.",
		}),
	}
}

// NewMetrics creates and registers all dashboard metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ScenesRendered,
		m.SceneMarkers,
		m.FilterErrors,
		m.Transitions,
		m.ActiveSessions,
		m.SessionsCreated,
		m.SessionsExpired,
		m.DatasetRecords,
		m.DatasetWeeks,
		m.DatasetDroppedRows,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.TransitionsPublished,
		m.TransitionsDropped,
		m.TransitionsDelivered,
		m.PublishErrors,
	}
}
