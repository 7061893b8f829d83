package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

type WorkerMetrics struct {
	registry   *prometheus.Registry
	resilience *ResilienceMetrics

	conversionTotal    *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	conversionInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	conversionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "conversion_total",
			Help:      "Total conversion jobs by status.",
		},
		[]string{"service", "status"},
	)
	conversionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "conversion_duration_seconds",
			Help:      "Conversion job duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180, 300},
		},
		[]string{"service", "status"},
	)
	conversionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "conversion_in_flight",
			Help:      "Number of in-flight conversion jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(conversionTotal, conversionDuration, conversionInFlight)

	return &WorkerMetrics{
		registry:           registry,
		resilience:         newResilienceMetrics(service, registry),
		conversionTotal:    conversionTotal,
		conversionDuration: conversionDuration,
		conversionInFlight: conversionInFlight,
	}
}

// Resilience shares this registry, so its series appear on the same /metrics endpoint.
func (m *WorkerMetrics) Resilience() *ResilienceMetrics {
	return m.resilience
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartConversion() {
	m.conversionInFlight.Inc()
}

// FinishConversion separates document failures from infrastructure errors.
func (m *WorkerMetrics) FinishConversion(service string, duration time.Duration, err error) {
	m.conversionInFlight.Dec()

	status := "success"
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrConversionFailed), domain.IsKind(err, domain.ErrMissingStoredFile):
		status = "failed"
	default:
		status = "error"
	}

	m.conversionTotal.WithLabelValues(service, status).Inc()
	m.conversionDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
