package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	auditRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_recorded_total",
			Help: "Audit events accepted onto the recording queue.",
		},
		[]string{"event_type", "status"},
	)

	auditDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_dropped_total",
		Help: "Audit events dropped because the recording queue was full.",
	})

	auditPersistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_persist_failures_total",
		Help: "Audit events that failed to persist (swallowed, logged only).",
	})
)

// Init registers all service metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		auditRecorded, auditDropped, auditPersistFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuditRecorded counts an audit event accepted for asynchronous recording.
func AuditRecorded(eventType, status string) {
	auditRecorded.WithLabelValues(eventType, status).Inc()
}

// AuditDropped counts an audit event lost to queue saturation.
func AuditDropped() {
	auditDropped.Inc()
}

// AuditPersistFailed counts a swallowed audit persistence failure.
func AuditPersistFailed() {
	auditPersistFailures.Inc()
}

// Instrument wraps an http.Handler with RPS, latency, and in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
