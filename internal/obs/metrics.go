package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP and auth metrics.
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

	authOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Authentication operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the credential store is reachable.",
	})

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, authOperations, ready)
	})
}

// Handler exposes Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthOperation counts one auth operation outcome, e.g. ("login", "unauthorized").
func AuthOperation(op, outcome string) {
	authOperations.WithLabelValues(op, outcome).Inc()
}

// SetReady mirrors readiness probe results.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// OtherPath labels every request that does not hit a known route.
const OtherPath = "other"

var knownPaths = map[string]bool{
	"/healthz":  true,
	"/readyz":   true,
	"/metrics":  true,
	"/v1/info":  true,
	"/v1/me":    true,
	"/register": true,
	"/auth":     true,
	"/refresh":  true,
	"/logout":   true,
}

// CanonicalPath maps a request path onto a fixed route label so metric label
// cardinality stays bounded. Unknown paths collapse to OtherPath.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if knownPaths[path] {
		return path
	}
	const adminUsers = "/v1/admin/users/"
	if rest, ok := strings.CutPrefix(path, adminUsers); ok {
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[0] != "" && (parts[1] == "roles" || parts[1] == "session") {
			return adminUsers + ":username/" + parts[1]
		}
	}
	return OtherPath
}

// Instrument wraps a handler with request count, latency and in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// statusWriter records the response status for Instrument.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
