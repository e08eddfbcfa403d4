package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and upload flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	uploadsCommittedTotal *prometheus.CounterVec
	uploadsFailedTotal    *prometheus.CounterVec
	commitPhaseDuration   *prometheus.HistogramVec
	commitsInflight       prometheus.Gauge
	orphansRecordedTotal  prometheus.Counter
	orphansSweptTotal     prometheus.Counter
	eventPublishFailures  prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docdrop",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docdrop",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		uploadsCommittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docdrop",
				Name:      "uploads_committed_total",
				Help:      "Total number of files committed to storage and metadata, by extension.",
			},
			[]string{"extension"},
		),
		uploadsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docdrop",
				Name:      "uploads_failed_total",
				Help:      "Total number of file commits that ended in error, by failing phase.",
			},
			[]string{"phase"},
		),
		commitPhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docdrop",
				Name:      "commit_phase_duration_seconds",
				Help:      "Duration of each commit phase in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"phase"},
		),
		commitsInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "docdrop",
				Name:      "commits_inflight",
				Help:      "Current number of in-flight file commits.",
			},
		),
		orphansRecordedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docdrop",
				Name:      "orphans_recorded_total",
				Help:      "Total number of stored objects left without a metadata row.",
			},
		),
		orphansSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docdrop",
				Name:      "orphans_swept_total",
				Help:      "Total number of orphaned objects removed by the sweeper.",
			},
		),
		eventPublishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docdrop",
				Name:      "event_publish_failures_total",
				Help:      "Total number of document events that could not be published.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.uploadsCommittedTotal,
		m.uploadsFailedTotal,
		m.commitPhaseDuration,
		m.commitsInflight,
		m.orphansRecordedTotal,
		m.orphansSweptTotal,
		m.eventPublishFailures,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncUploadCommitted(extension string) {
	if m == nil {
		return
	}
	m.uploadsCommittedTotal.WithLabelValues(normalizeLabel(extension)).Inc()
}

func (m *Metrics) IncUploadFailed(phase string) {
	if m == nil {
		return
	}
	m.uploadsFailedTotal.WithLabelValues(normalizeLabel(phase)).Inc()
}

func (m *Metrics) ObserveCommitPhase(phase string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.commitPhaseDuration.WithLabelValues(normalizeLabel(phase)).Observe(seconds)
}

func (m *Metrics) IncCommitsInFlight() {
	if m == nil {
		return
	}
	m.commitsInflight.Inc()
}

func (m *Metrics) DecCommitsInFlight() {
	if m == nil {
		return
	}
	m.commitsInflight.Dec()
}

func (m *Metrics) IncOrphanRecorded() {
	if m == nil {
		return
	}
	m.orphansRecordedTotal.Inc()
}

func (m *Metrics) AddOrphansSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphansSweptTotal.Add(float64(n))
}

func (m *Metrics) IncEventPublishFailed() {
	if m == nil {
		return
	}
	m.eventPublishFailures.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
