package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, so components can be built without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Process host metrics
	SessionsCreated prometheus.Counter
	SessionsClosed  *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	OutputBytes     prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Display lifecycle metrics
	Mounts            *prometheus.CounterVec
	Unmounts          prometheus.Counter
	Subscriptions     prometheus.Gauge
	RendererAttached  *prometheus.CounterVec
	RendererFallbacks *prometheus.CounterVec
	HealthChecks      *prometheus.CounterVec
	ResizeFits        prometheus.Counter
	ReconnectFlush    prometheus.Histogram

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests   int64
	TotalErrors     int64
	SessionsCreated int64
	ActiveSessions  int64
	Mounts          int64
	Fallbacks       int64
}

// NewMetrics creates a metrics collector on its own registry.
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
				Name: "termdeck_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termdeck_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termdeck_sessions_created_total",
				Help: "Total number of PTY sessions created",
			},
		),
		SessionsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termdeck_sessions_closed_total",
				Help: "Total number of PTY sessions that ended",
			},
			[]string{"reason"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termdeck_sessions_active",
				Help: "Number of live PTY sessions",
			},
		),
		OutputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termdeck_output_bytes_total",
				Help: "Bytes read from PTY sessions",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termdeck_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termdeck_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Mounts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termdeck_display_mounts_total",
				Help: "Display mounts by kind (create, reattach)",
			},
			[]string{"kind"},
		),
		Unmounts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termdeck_display_unmounts_total",
				Help: "Display teardowns completed",
			},
		),
		Subscriptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termdeck_display_subscriptions",
				Help: "Active output subscriptions held by displays",
			},
		),
		RendererAttached: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termdeck_renderer_attached_total",
				Help: "Renderers attached by backend",
			},
			[]string{"renderer"},
		),
		RendererFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termdeck_renderer_fallbacks_total",
				Help: "Renderer fallbacks by failed backend and reason",
			},
			[]string{"from", "reason"},
		),
		HealthChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termdeck_health_checks_total",
				Help: "Session liveness checks by result",
			},
			[]string{"result"},
		),
		ResizeFits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termdeck_resize_fits_total",
				Help: "Debounced re-fit operations performed",
			},
		),
		ReconnectFlush: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "termdeck_reconnect_flush_bytes",
				Help:    "Bytes flushed from the reconnection buffer",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termdeck_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.Uptime.Set(time.Since(m.startTime).Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// IncSessionsCreated records a new PTY session
func (m *Metrics) IncSessionsCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
	m.mu.Lock()
	m.snapshot.SessionsCreated++
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// IncSessionsClosed records a PTY session ending
func (m *Metrics) IncSessionsClosed(reason string) {
	if m == nil {
		return
	}
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.SessionsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// AddOutputBytes counts PTY output
func (m *Metrics) AddOutputBytes(n int) {
	if m == nil {
		return
	}
	m.OutputBytes.Add(float64(n))
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncMount records a display mount
func (m *Metrics) IncMount(kind string) {
	if m == nil {
		return
	}
	m.Mounts.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.Mounts++
	m.mu.Unlock()
}

// IncUnmount records a completed teardown
func (m *Metrics) IncUnmount() {
	if m == nil {
		return
	}
	m.Unmounts.Inc()
}

// AddSubscriptions adjusts the active subscription gauge
func (m *Metrics) AddSubscriptions(delta int) {
	if m == nil {
		return
	}
	m.Subscriptions.Add(float64(delta))
}

// RecordRenderer records a renderer attach
func (m *Metrics) RecordRenderer(renderer string) {
	if m == nil {
		return
	}
	m.RendererAttached.WithLabelValues(renderer).Inc()
}

// RecordRendererFallback records a failed renderer
func (m *Metrics) RecordRendererFallback(from, reason string) {
	if m == nil {
		return
	}
	m.RendererFallbacks.WithLabelValues(from, reason).Inc()
	m.mu.Lock()
	m.snapshot.Fallbacks++
	m.mu.Unlock()
}

// RecordHealthCheck records a liveness result ("alive", "dead", "error")
func (m *Metrics) RecordHealthCheck(result string) {
	if m == nil {
		return
	}
	m.HealthChecks.WithLabelValues(result).Inc()
}

// IncResizeFits records a debounced fit
func (m *Metrics) IncResizeFits() {
	if m == nil {
		return
	}
	m.ResizeFits.Inc()
}

// ObserveReconnectFlush records a reconnection flush size
func (m *Metrics) ObserveReconnectFlush(bytes int) {
	if m == nil {
		return
	}
	m.ReconnectFlush.Observe(float64(bytes))
}

// Snapshot returns a copy of the tracked values
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
