package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shipbridge"

// Metrics holds all Prometheus metrics for the service. A nil *Metrics
// records nothing.
type Metrics struct {
	WebhooksTotal   *prometheus.CounterVec
	WebhookDuration *prometheus.HistogramVec
	SyncOutcomes    *prometheus.CounterVec
	RetryAttempts   *prometheus.CounterVec
	WriteBacks      *prometheus.CounterVec
	RateQuotes      *prometheus.CounterVec
	CarrierErrors   *prometheus.CounterVec
	DeadLetters     *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
}

// NewMetrics creates metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhooks_total",
				Help:      "Inbound webhook requests by route and HTTP status",
			},
			[]string{"route", "status"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_duration_seconds",
				Help:      "Inbound webhook handling duration in seconds by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SyncOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_sync_total",
				Help:      "Order sync outcomes (created, duplicate, failed, dropped)",
			},
			[]string{"outcome"},
		),
		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Retries scheduled after a retryable failure by operation",
			},
			[]string{"operation"},
		),
		WriteBacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fulfillment_writebacks_total",
				Help:      "Fulfillment write-back outcomes",
			},
			[]string{"outcome"},
		),
		RateQuotes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_quotes_total",
				Help:      "Rate quotation responses by source (live, fallback)",
			},
			[]string{"source"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "carrier_errors_total",
				Help:      "Carrier backend errors by operation and error code",
			},
			[]string{"operation", "code"},
		),
		DeadLetters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dead_letters_total",
				Help:      "Dead-letter entries written by error kind",
			},
			[]string{"kind"},
		),
		BackendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_call_duration_seconds",
				Help:      "Carrier backend call duration in seconds by operation and result",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"operation", "result"},
		),
	}
}

// ObserveBackendCall records the duration of one carrier backend call.
func (m *Metrics) ObserveBackendCall(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BackendDuration.WithLabelValues(operation, result).Observe(d.Seconds())
}

// RecordWebhook records an inbound webhook request.
func (m *Metrics) RecordWebhook(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(route, status).Inc()
	m.WebhookDuration.WithLabelValues(route).Observe(seconds)
}

// RecordSync records an order sync outcome.
func (m *Metrics) RecordSync(outcome string) {
	if m == nil {
		return
	}
	m.SyncOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRetry records one scheduled retry.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(operation).Inc()
}

// RecordWriteBack records a fulfillment write-back outcome.
func (m *Metrics) RecordWriteBack(outcome string) {
	if m == nil {
		return
	}
	m.WriteBacks.WithLabelValues(outcome).Inc()
}

// RecordRateQuote records whether live or fallback rates were served.
func (m *Metrics) RecordRateQuote(source string) {
	if m == nil {
		return
	}
	m.RateQuotes.WithLabelValues(source).Inc()
}

// RecordCarrierError records a carrier backend error.
func (m *Metrics) RecordCarrierError(operation, code string) {
	if m == nil {
		return
	}
	m.CarrierErrors.WithLabelValues(operation, code).Inc()
}

// RecordDeadLetter records a dead-letter write.
func (m *Metrics) RecordDeadLetter(kind string) {
	if m == nil {
		return
	}
	m.DeadLetters.WithLabelValues(kind).Inc()
}
