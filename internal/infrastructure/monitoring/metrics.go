package monitoring

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/stat"
)

const namespace = "registry"

// latencyWindow bounds the index durations kept for quantile summaries
const latencyWindow = 512

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Match index metrics
	IndexOps      *prometheus.CounterVec
	IndexDuration *prometheus.HistogramVec
	IndexAffected *prometheus.HistogramVec
	IndexRFPs     prometheus.Gauge
	IndexPairs    prometheus.Gauge

	// Session metrics
	SessionOps     *prometheus.CounterVec
	SessionsActive prometheus.Gauge

	// Profile source metrics
	SourceCalls    *prometheus.CounterVec
	SourceDuration *prometheus.HistogramVec

	// Event metrics
	EventsPublished *prometheus.CounterVec
	WSConnections   prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	recent   []float64
	next     int
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON stats endpoint
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	IndexOps       int64   `json:"index_ops"`
	IndexFailures  int64   `json:"index_failures"`
	ActiveSessions int64   `json:"active_sessions"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	IndexP50MS     float64 `json:"index_p50_ms"`
	IndexP95MS     float64 `json:"index_p95_ms"`

	totalDuration float64
}

// NewMetrics creates a collector on its own registry so that several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		IndexOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_operations_total",
				Help:      "Match index writes by operation and outcome",
			},
			[]string{"op", "status"},
		),
		IndexDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "index_operation_duration_seconds",
				Help:      "Match index write duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"op"},
		),
		IndexAffected: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "index_affected_services",
				Help:      "Services affected by a successful index write",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"op"},
		),
		IndexRFPs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_rfps",
				Help:      "Number of registered RFPs",
			},
		),
		IndexPairs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_pairs",
				Help:      "Number of (RFP, service) match pairs",
			},
		),

		SessionOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_operations_total",
				Help:      "Session authority operations by outcome",
			},
			[]string{"op", "status"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of live publication sessions",
			},
		),

		SourceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_source_calls_total",
				Help:      "Profile source calls by method and outcome",
			},
			[]string{"method", "status"},
		),
		SourceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "profile_source_duration_seconds",
				Help:      "Profile source call duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_events_total",
				Help:      "Index events delivered per sink",
			},
			[]string{"sink", "status"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket event subscribers",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Registry uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// ObserveIndexOp records a match index write
func (m *Metrics) ObserveIndexOp(op, status string, duration time.Duration, affected int) {
	m.IndexOps.WithLabelValues(op, status).Inc()
	m.IndexDuration.WithLabelValues(op).Observe(duration.Seconds())
	if status == StatusOK {
		m.IndexAffected.WithLabelValues(op).Observe(float64(affected))
	}

	m.mu.Lock()
	m.snapshot.IndexOps++
	if status != StatusOK {
		m.snapshot.IndexFailures++
	}
	ms := float64(duration) / float64(time.Millisecond)
	if len(m.recent) < latencyWindow {
		m.recent = append(m.recent, ms)
	} else {
		m.recent[m.next] = ms
	}
	m.next = (m.next + 1) % latencyWindow
	m.mu.Unlock()
}

// SetIndexSize sets the index size gauges
func (m *Metrics) SetIndexSize(rfps, pairs int) {
	m.IndexRFPs.Set(float64(rfps))
	m.IndexPairs.Set(float64(pairs))
}

// RecordSessionOp records a session authority operation
func (m *Metrics) RecordSessionOp(op, status string) {
	m.SessionOps.WithLabelValues(op, status).Inc()
}

// SetActiveSessions sets the live session gauge
func (m *Metrics) SetActiveSessions(n int) {
	m.SessionsActive.Set(float64(n))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(n)
	m.mu.Unlock()
}

// RecordSourceCall records a profile source call
func (m *Metrics) RecordSourceCall(method, status string, duration time.Duration) {
	m.SourceCalls.WithLabelValues(method, status).Inc()
	m.SourceDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordEvent records an index event delivery
func (m *Metrics) RecordEvent(sink, status string) {
	m.EventsPublished.WithLabelValues(sink, status).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns the current summary values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgLatencyMS = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	if len(m.recent) > 0 {
		sorted := append([]float64(nil), m.recent...)
		sort.Float64s(sorted)
		s.IndexP50MS = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		s.IndexP95MS = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	return s
}
