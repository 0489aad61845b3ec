package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	stageDuration     *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	cacheHitsTotal    prometheus.Counter
	rateLimitRejected *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shrinkray_requests_total",
			Help: "Total HTTP requests handled by the image endpoint.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shrinkray_request_duration_seconds",
			Help:    "Image request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shrinkray_stage_duration_seconds",
			Help:    "Per-stage pipeline latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shrinkray_errors_total",
			Help: "Total failed requests by failure kind.",
		}, []string{"kind"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shrinkray_variant_cache_hits_total",
			Help: "Total responses served from the variant cache.",
		}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shrinkray_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		}, []string{"route"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.stageDuration,
		m.errorsTotal,
		m.cacheHitsTotal,
		m.rateLimitRejected,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeStage is wired into the pipeline as its stage observer. The zero
// duration emitted for cache hits is skipped.
func (m *metrics) observeStage(stage string, d time.Duration) {
	if d <= 0 {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses request paths to their route prefix so metric
// cardinality stays bounded regardless of how many objects are served.
func routeLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "/"
	}
	segment, _, _ := strings.Cut(trimmed, "/")
	return "/" + segment
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
