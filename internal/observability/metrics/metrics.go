package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "cardrecon_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestTotal   *prometheus.CounterVec
	ingestLatency *prometheus.HistogramVec

	validationTotal   *prometheus.CounterVec
	validationLatency *prometheus.HistogramVec

	processTotal   *prometheus.CounterVec
	processLatency *prometheus.HistogramVec

	revertTotal *prometheus.CounterVec

	exportTotal *prometheus.CounterVec
)

// Init registers reconciliation metrics and DB-backed gauges. Safe to call
// more than once; only the first call registers.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		ingestTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_total",
				Help: "Total statement ingestions by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Statement ingestion latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		validationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "validation_total",
				Help: "Total validation records created by confidence tier",
			},
			[]string{"tier"},
		)
		validationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "validation_latency_seconds",
				Help:    "Match and score latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		processTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "process_total",
				Help: "Total process attempts by result",
			},
			[]string{"result"},
		)
		processLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "process_latency_seconds",
				Help:    "Process latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		revertTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "revert_total",
				Help: "Total revert attempts by result",
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total validation exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestTotal,
			ingestLatency,
			validationTotal,
			validationLatency,
			processTotal,
			processLatency,
			revertTotal,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingestion duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestTotal != nil {
		ingestTotal.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveValidation records a validation run. tier is empty when the run failed.
func ObserveValidation(tier string, duration time.Duration) {
	result := resultSuccess
	if tier == "" {
		result = resultError
	} else if validationTotal != nil {
		validationTotal.WithLabelValues(tier).Inc()
	}
	if validationLatency != nil {
		validationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveProcess records a process attempt; result is "success" or an error kind.
func ObserveProcess(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if processTotal != nil {
		processTotal.WithLabelValues(result).Inc()
	}
	if processLatency != nil {
		processLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncRevert increments the revert counter.
func IncRevert(result string) {
	if result == "" {
		result = resultSuccess
	}
	if revertTotal != nil {
		revertTotal.WithLabelValues(result).Inc()
	}
}

// IncExport increments the export counter.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
