// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sagsfiler"

var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by route pattern and status.",
	}, []string{"method", "route", "status"})

	requestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	fileOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "files", Name: "operations_total",
		Help: "Create, rename, move and delete by outcome: success, noop, blocked, rejected or error.",
	}, []string{"operation", "outcome"})

	bytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "content", Name: "bytes_downloaded_total",
		Help: "Bytes served as single files or zip exports.",
	})

	bytesIn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "content", Name: "bytes_uploaded_total",
		Help: "Bytes accepted by the content endpoint.",
	})

	zipExports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "zip", Name: "exports_total",
		Help: "Batch zip exports by status.",
	}, []string{"status"})

	zipFiles = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "zip", Name: "export_entries",
		Help:    "Files per completed zip export.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	dbQuerySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "db", Name: "query_duration_seconds",
		Help:    "Metadata query latency by query name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	dbOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "db", Name: "connections_open",
		Help: "Open metadata database connections.",
	})

	storageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "storage", Name: "operation_duration_seconds",
		Help:    "Object storage latency by backend and operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	storageOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "storage", Name: "operations_total",
		Help: "Object storage operations by backend, operation and status.",
	}, []string{"backend", "operation", "status"})

	sseClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "sse", Name: "connections_active",
		Help: "Subscribers attached to case event streams.",
	})

	sseEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sse", Name: "events_total",
		Help: "Case events published by type.",
	}, []string{"type"})

	authChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "attempts_total",
		Help: "Bearer token validations by result.",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	requestSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordFileOperation counts one create, rename, move or delete.
func RecordFileOperation(operation, result string) {
	fileOps.WithLabelValues(operation, result).Inc()
}

func RecordContentDownload(n int64) { bytesOut.Add(float64(n)) }
func RecordContentUpload(n int64)   { bytesIn.Add(float64(n)) }

// RecordZipExport counts an export; entries and bytes only count when it
// completed.
func RecordZipExport(entries int, n int64, ok bool) {
	zipExports.WithLabelValues(outcome(ok, "success", "error")).Inc()
	if !ok {
		return
	}
	zipFiles.Observe(float64(entries))
	bytesOut.Add(float64(n))
}

func RecordDBQuery(query string, d time.Duration) {
	dbQuerySeconds.WithLabelValues(query).Observe(d.Seconds())
}

func SetDBConnectionsOpen(n int) { dbOpen.Set(float64(n)) }

func RecordStorageOperation(backend, operation string, d time.Duration, ok bool) {
	storageSeconds.WithLabelValues(backend, operation).Observe(d.Seconds())
	storageOps.WithLabelValues(backend, operation, outcome(ok, "success", "error")).Inc()
}

func SetSSEConnectionsActive(n int64) { sseClients.Set(float64(n)) }
func RecordSSEEvent(eventType string) { sseEvents.WithLabelValues(eventType).Inc() }

func RecordAuthAttempt(ok bool) {
	authChecks.WithLabelValues(outcome(ok, "success", "failure")).Inc()
}

// ─── Middleware ─────────────────────────────────────────────────────────────

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (s *statusWriter) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Middleware records request count and latency labelled by the mux route
// pattern, so case IDs never become label values.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, sw.code, time.Since(start))
	})
}
