package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "confportal"

type HTTPServerMetrics struct {
	registry   *prometheus.Registry
	resilience *ResilienceMetrics

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	submissionsTotal   *prometheus.CounterVec
	uploadBytes        *prometheus.HistogramVec
	statusChangesTotal *prometheus.CounterVec
	compileTotal       *prometheus.CounterVec
	compileDuration    *prometheus.HistogramVec
	compiledPages      prometheus.Histogram
	compileSkipped     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "uploads_total",
			Help:      "Accepted uploads by kind (submit or resubmit).",
		},
		[]string{"service", "kind"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "upload_bytes",
			Help:      "Size of accepted manuscript uploads.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
		[]string{"service", "format"},
	)
	statusChangesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "status_changes_total",
			Help:      "Organizer status changes by target status.",
		},
		[]string{"service", "status"},
	)
	compileTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proceedings",
			Name:      "compile_total",
			Help:      "Proceedings compilations by outcome.",
		},
		[]string{"service", "status"},
	)
	compileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proceedings",
			Name:      "compile_duration_seconds",
			Help:      "Proceedings compilation duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	compiledPages := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proceedings",
			Name:      "pages",
			Help:      "Page count of compiled proceedings.",
			Buckets:   []float64{10, 50, 100, 200, 400, 800, 1600},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	compileSkipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proceedings",
			Name:      "skipped_submissions_total",
			Help:      "Eligible submissions left out of a compilation because their file was missing.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		submissionsTotal,
		uploadBytes,
		statusChangesTotal,
		compileTotal,
		compileDuration,
		compiledPages,
		compileSkipped,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		resilience:         newResilienceMetrics(service, registry),
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		submissionsTotal:   submissionsTotal,
		uploadBytes:        uploadBytes,
		statusChangesTotal: statusChangesTotal,
		compileTotal:       compileTotal,
		compileDuration:    compileDuration,
		compiledPages:      compiledPages,
		compileSkipped:     compileSkipped,
	}
}

// Resilience shares this registry, so its series appear on the same /metrics endpoint.
func (m *HTTPServerMetrics) Resilience() *ResilienceMetrics {
	return m.resilience
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses numeric path segments so ids do not explode label cardinality.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if _, err := strconv.ParseInt(segment, 10, 64); err == nil {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func (m *HTTPServerMetrics) RecordUpload(service, kind, format string, size int64) {
	if kind == "" {
		kind = "unknown"
	}
	if format == "" {
		format = "unknown"
	}
	m.submissionsTotal.WithLabelValues(service, kind).Inc()
	if size > 0 {
		m.uploadBytes.WithLabelValues(service, format).Observe(float64(size))
	}
}

func (m *HTTPServerMetrics) RecordStatusChange(service, status string) {
	if status == "" {
		status = "unknown"
	}
	m.statusChangesTotal.WithLabelValues(service, status).Inc()
}

func (m *HTTPServerMetrics) RecordCompile(service string, duration time.Duration, pages, skipped int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.compileTotal.WithLabelValues(service, status).Inc()
	m.compileDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.compiledPages.Observe(float64(pages))
	if skipped > 0 {
		m.compileSkipped.WithLabelValues(service).Add(float64(skipped))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
