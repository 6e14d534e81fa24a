package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
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

	// APIKeyValidations counts bearer key validation outcomes:
	// ok, invalid, revoked, expired, error.
	APIKeyValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apikey_validations_total",
			Help: "API key validation attempts by outcome.",
		},
		[]string{"result"},
	)

	// PermissionChecks counts resolver decisions: allowed, denied, error.
	PermissionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_checks_total",
			Help: "Permission resolver decisions by outcome.",
		},
		[]string{"result"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		APIKeyValidations,
		PermissionChecks,
	)
}

// Handler exposes the Prometheus endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

// CanonicalPath collapses resource identifiers in org-scoped routes so metric
// label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/v1/orgs/") {
		return path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	// parts[0]="v1" parts[1]="orgs" parts[2]=org id
	if len(parts) < 3 {
		return path
	}
	parts[2] = ":org"
	if len(parts) >= 5 {
		switch parts[3] {
		case "roles", "members", "api-keys":
			parts[4] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
