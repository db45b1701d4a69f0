package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Store operation metrics
	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec
	storeKeysTotal         prometheus.Gauge
	storeKeysWithTTL       prometheus.Gauge
	storeExpiredTotal      *prometheus.GaugeVec

	// Snapshot metrics
	snapshotOperationsTotal   *prometheus.CounterVec
	snapshotOperationDuration *prometheus.HistogramVec
	snapshotSizeBytes         prometheus.Gauge
	snapshotEntries           prometheus.Gauge

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Health check metrics
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvsnap_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kvsnap_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kvsnap_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvsnap_store_operations_total",
				Help: "Total number of key/value operations",
			},
			[]string{"operation", "status"},
		),

		storeOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kvsnap_store_operation_duration_seconds",
				Help:    "Key/value operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		storeKeysTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kvsnap_store_keys",
				Help: "Number of live keys in the store",
			},
		),

		storeKeysWithTTL: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kvsnap_store_keys_with_ttl",
				Help: "Number of live keys that carry an expiry",
			},
		),

		storeExpiredTotal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kvsnap_store_expired_keys",
				Help: "Keys dropped because they expired, by where they were dropped",
			},
			[]string{"source"},
		),

		snapshotOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvsnap_snapshot_operations_total",
				Help: "Total number of snapshot saves, dumps and restores",
			},
			[]string{"operation", "status"},
		),

		snapshotOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kvsnap_snapshot_operation_duration_seconds",
				Help:    "Snapshot operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		snapshotSizeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kvsnap_snapshot_size_bytes",
				Help: "Size of the most recent snapshot in bytes",
			},
		),

		snapshotEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kvsnap_snapshot_entries",
				Help: "Entries in the most recent snapshot",
			},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvsnap_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvsnap_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordStoreOperation records a key/value operation
func (m *Metrics) RecordStoreOperation(operation string, success bool, duration time.Duration) {
	m.storeOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
	m.storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSnapshot records a snapshot save, dump or restore. bytes and entries
// are only recorded for successful operations.
func (m *Metrics) RecordSnapshot(operation string, success bool, bytes, entries int, duration time.Duration) {
	m.snapshotOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
	m.snapshotOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if success {
		m.snapshotSizeBytes.Set(float64(bytes))
		m.snapshotEntries.Set(float64(entries))
	}
}

// UpdateStoreStats updates the store gauges
func (m *Metrics) UpdateStoreStats(keys, keysWithTTL int, expiredOnLoad, expiredSwept int64) {
	m.storeKeysTotal.Set(float64(keys))
	m.storeKeysWithTTL.Set(float64(keysWithTTL))
	m.storeExpiredTotal.WithLabelValues("load").Set(float64(expiredOnLoad))
	m.storeExpiredTotal.WithLabelValues("sweep").Set(float64(expiredSwept))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	m.authRequestsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	m.healthChecksTotal.WithLabelValues(statusLabel(success)).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := wrapResponseWriter(w)
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware records the outcome of every request that
// presented an API key
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := wrapResponseWriter(w)
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
