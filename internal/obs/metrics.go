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

	roleMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaktool_role_mutations_total",
			Help: "Role store mutations by operation and result.",
		},
		[]string{"op", "result"},
	)

	recomputeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaktool_recompute_total",
			Help: "Derived-state recomputations by stage and result.",
		},
		[]string{"stage", "result"},
	)

	recomputeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "breaktool_recompute_duration_seconds",
			Help:    "Derived-state recomputation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaktool_verdicts_total",
			Help: "Stored tool verdicts by outcome.",
		},
		[]string{"verdict"},
	)

	initOnce sync.Once
)

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			roleMutations, recomputeTotal, recomputeDuration, verdictsTotal,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRoleMutation counts one role store mutation.
func ObserveRoleMutation(op string, err error) {
	roleMutations.WithLabelValues(op, result(err)).Inc()
}

// ObserveRecompute records one recompute stage (trust, badges, verdict).
func ObserveRecompute(stage string, started time.Time, err error) {
	recomputeTotal.WithLabelValues(stage, result(err)).Inc()
	recomputeDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// ObserveVerdict counts a stored verdict.
func ObserveVerdict(verdict string) {
	verdictsTotal.WithLabelValues(verdict).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// CanonicalPath collapses identifiers in known routes so metric labels stay bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && (parts[1] == "users" || parts[1] == "tools") {
		parts[2] = ":id"
		if parts[1] == "users" && len(parts) == 5 && parts[3] == "roles" {
			parts[4] = ":role"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// Instrument measures in-flight requests, count and latency.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
