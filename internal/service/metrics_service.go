package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the billing
// pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	paymentsGenerated prometheus.Counter
	accrualUpdated    prometheus.Counter
	accrualNoOps      prometheus.Counter
	accrualFailed     prometheus.Counter
	accrualDuration   prometheus.Histogram
	webhookProcessed  *prometheus.CounterVec
	queueRetries      *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	paymentsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_payments_generated_total",
		Help: "Total number of schedule payments created",
	})

	accrualUpdated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_accrual_updated_total",
		Help: "Invoices updated with fine or interest",
	})

	accrualNoOps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_accrual_noop_total",
		Help: "Accrual passes that left the invoice unchanged",
	})

	accrualFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_accrual_failed_total",
		Help: "Invoices that failed during accrual",
	})

	accrualDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_accrual_run_seconds",
		Help:    "Duration of full accrual batch runs",
		Buckets: prometheus.DefBuckets,
	})

	webhookProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_processed_total",
		Help: "Webhook events processed by family and outcome",
	}, []string{"family", "outcome"})

	queueRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_dead_letter_total",
		Help: "Jobs that exhausted their retry budget",
	}, []string{"type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, paymentsGenerated, accrualUpdated, accrualNoOps, accrualFailed, accrualDuration, webhookProcessed, queueRetries, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		paymentsGenerated: paymentsGenerated,
		accrualUpdated:    accrualUpdated,
		accrualNoOps:      accrualNoOps,
		accrualFailed:     accrualFailed,
		accrualDuration:   accrualDuration,
		webhookProcessed:  webhookProcessed,
		queueRetries:      queueRetries,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// AddPaymentsGenerated counts new schedule payments.
func (m *MetricsService) AddPaymentsGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.paymentsGenerated.Add(float64(n))
}

// ObserveAccrualRun records the outcome counters of one accrual batch.
func (m *MetricsService) ObserveAccrualRun(updated, noOps, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.accrualUpdated.Add(float64(updated))
	m.accrualNoOps.Add(float64(noOps))
	m.accrualFailed.Add(float64(failed))
	m.accrualDuration.Observe(duration.Seconds())
}

// ObserveWebhook counts one processed webhook event.
func (m *MetricsService) ObserveWebhook(family, outcome string) {
	if m == nil {
		return
	}
	m.webhookProcessed.WithLabelValues(family, outcome).Inc()
}

// RecordDeadLetter counts a job that exhausted its retries.
func (m *MetricsService) RecordDeadLetter(jobType string) {
	if m == nil {
		return
	}
	m.queueRetries.WithLabelValues(jobType).Inc()
}
