package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
// All methods are nil-safe so wiring can stay optional in tests.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	reconcilePasses     *prometheus.CounterVec
	layersAdded         prometheus.Counter
	layersRemoved       prometheus.Counter
	styleSwaps          prometheus.Counter
	surfaceOps          prometheus.Counter
	droppedFeatures     prometheus.Counter
	activeSessions      prometheus.Gauge
}

// New creates a fresh Metrics registry with HTTP and reconciliation metrics
// registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by mapcore",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapcore",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by mapcore",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	reconcilePasses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "reconcile_passes_total",
		Help:      "Count of domain reconciliation passes applied",
	}, []string{"domain"})

	layersAdded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "layers_added_total",
		Help:      "Count of layers added to rendering surfaces",
	})

	layersRemoved := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "layers_removed_total",
		Help:      "Count of layers removed from rendering surfaces",
	})

	styleSwaps := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "style_swaps_total",
		Help:      "Count of completed basemap style swaps",
	})

	surfaceOps := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "surface_ops_total",
		Help:      "Count of surface ops streamed to renderers",
	})

	droppedFeatures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "dropped_features_total",
		Help:      "Count of malformed features skipped during marker synthesis",
	})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapcore",
		Name:      "active_sessions",
		Help:      "Number of live map sessions",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		reconcilePasses,
		layersAdded,
		layersRemoved,
		styleSwaps,
		surfaceOps,
		droppedFeatures,
		activeSessions,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		reconcilePasses:     reconcilePasses,
		layersAdded:         layersAdded,
		layersRemoved:       layersRemoved,
		styleSwaps:          styleSwaps,
		surfaceOps:          surfaceOps,
		droppedFeatures:     droppedFeatures,
		activeSessions:      activeSessions,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncReconcilePass counts one applied domain pass.
func (m *Metrics) IncReconcilePass(domain string) {
	if m == nil {
		return
	}
	m.reconcilePasses.WithLabelValues(domain).Inc()
}

// AddLayersAdded counts layers added during a pass.
func (m *Metrics) AddLayersAdded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.layersAdded.Add(float64(n))
}

// AddLayersRemoved counts layers removed during a pass.
func (m *Metrics) AddLayersRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.layersRemoved.Add(float64(n))
}

// IncStyleSwap counts one completed basemap swap.
func (m *Metrics) IncStyleSwap() {
	if m == nil {
		return
	}
	m.styleSwaps.Inc()
}

// AddSurfaceOps counts ops flushed toward a renderer.
func (m *Metrics) AddSurfaceOps(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.surfaceOps.Add(float64(n))
}

// AddDroppedFeatures counts malformed features skipped in a batch.
func (m *Metrics) AddDroppedFeatures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedFeatures.Add(float64(n))
}

// IncActiveSessions increments the live session gauge.
func (m *Metrics) IncActiveSessions() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// DecActiveSessions decrements the live session gauge.
func (m *Metrics) DecActiveSessions() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
