package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func registerDBMetrics(db *sql.DB, logger *zap.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "validations_pending_review",
			Help: "Validation records waiting for a decision",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM validation_records WHERE status IN ('pending_review', 'approved')")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "installments_awaiting_nsu",
			Help: "Ledger installments without a linked NSU",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM ledger_installments WHERE status = 'awaiting_nsu'")
		},
	))
}

func queryCount(db *sql.DB, logger *zap.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", zap.Error(err))
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
