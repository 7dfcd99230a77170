package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"

	"nauvus-backend/internal/logger"
)

func registerDBMetrics(db *sql.DB) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "webhook_claims_processing",
			Help: "Webhook events claimed but not yet marked done",
		},
		func() float64 {
			return queryCount(db, "SELECT COUNT(*) FROM processed_events WHERE status = 'processing'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "invoices_unpaid",
			Help: "Invoices not yet paid by the broker",
		},
		func() float64 {
			return queryCount(db, "SELECT COUNT(*) FROM invoices WHERE status <> 'paid'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "loans_outstanding",
			Help: "Loans funded and not yet repaid",
		},
		func() float64 {
			return queryCount(db, "SELECT COUNT(*) FROM loans WHERE status IN ('outstanding', 'late')")
		},
	))
}

func queryCount(db *sql.DB, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		logger.Warn("metrics query failed", "query", query, "error", err)
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
