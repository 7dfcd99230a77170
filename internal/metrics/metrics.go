package metrics

import (
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "nauvus_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	webhookEventsTotal   *prometheus.CounterVec
	webhookEventsLatency *prometheus.HistogramVec

	transfersTotal  *prometheus.CounterVec
	transferCents   *prometheus.CounterVec
	payoutsTotal    *prometheus.CounterVec
	payoutsLatency  *prometheus.HistogramVec
	transitionTotal *prometheus.CounterVec
	alertsTotal     *prometheus.CounterVec
	jobRunsTotal    *prometheus.CounterVec
	jobRunsLatency  *prometheus.HistogramVec
)

// Init registers settlement metrics. When db is non-nil the DB-backed gauges
// are registered as well.
func Init(db *sql.DB) {
	registerOnce.Do(func() {
		webhookEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "webhook_events_total",
				Help: "Total payment webhook events by type and result",
			},
			[]string{"type", "result"},
		)
		webhookEventsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "webhook_event_latency_seconds",
				Help:    "Webhook event handling latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		)
		transfersTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transfers_total",
				Help: "Total outgoing transfers by payment type and result",
			},
			[]string{"type", "result"},
		)
		transferCents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transfer_cents_total",
				Help: "Total cents moved by outgoing transfers",
			},
			[]string{"type"},
		)
		payoutsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payouts_total",
				Help: "Total broker payment distributions by result",
			},
			[]string{"result"},
		)
		payoutsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "payout_latency_seconds",
				Help:    "Broker payment distribution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		transitionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "load_transitions_total",
				Help: "Total load status transitions by target status",
			},
			[]string{"to"},
		)
		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Total operator alerts by kind",
			},
			[]string{"kind"},
		)
		jobRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "job_runs_total",
				Help: "Total scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		)
		jobRunsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "job_run_latency_seconds",
				Help:    "Scheduled job latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		)

		prometheus.MustRegister(
			webhookEventsTotal,
			webhookEventsLatency,
			transfersTotal,
			transferCents,
			payoutsTotal,
			payoutsLatency,
			transitionTotal,
			alertsTotal,
			jobRunsTotal,
			jobRunsLatency,
		)

		if db != nil {
			registerDBMetrics(db)
		}
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveWebhookEvent records one processed webhook event.
func ObserveWebhookEvent(eventType, result string, duration time.Duration) {
	if eventType == "" {
		eventType = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if webhookEventsTotal != nil {
		webhookEventsTotal.WithLabelValues(eventType, result).Inc()
	}
	if webhookEventsLatency != nil {
		webhookEventsLatency.WithLabelValues(eventType).Observe(duration.Seconds())
	}
}

// ObserveTransfer records an outgoing transfer attempt.
func ObserveTransfer(paymentType, result string, amountInCents int64) {
	if result == "" {
		result = resultSuccess
	}
	if transfersTotal != nil {
		transfersTotal.WithLabelValues(paymentType, result).Inc()
	}
	if result == resultSuccess && amountInCents > 0 && transferCents != nil {
		transferCents.WithLabelValues(paymentType).Add(float64(amountInCents))
	}
}

// ObservePayout records a full distribution run for one broker payment.
func ObservePayout(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if payoutsTotal != nil {
		payoutsTotal.WithLabelValues(result).Inc()
	}
	if payoutsLatency != nil {
		payoutsLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncTransition increments the load transition counter.
func IncTransition(to string) {
	if transitionTotal != nil {
		transitionTotal.WithLabelValues(to).Inc()
	}
}

// IncAlert increments the operator alert counter.
func IncAlert(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveJobRun records a scheduled job execution.
func ObserveJobRun(job, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if jobRunsTotal != nil {
		jobRunsTotal.WithLabelValues(job, result).Inc()
	}
	if jobRunsLatency != nil {
		jobRunsLatency.WithLabelValues(job).Observe(duration.Seconds())
	}
}

// ResultOf maps an error to a result label.
func ResultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)
