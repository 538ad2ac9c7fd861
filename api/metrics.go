package api

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the salary API.
type Metrics struct {
	// RecalculationsTotal counts month recomputations by outcome
	// (success, batch_error, store_error).
	RecalculationsTotal *prometheus.CounterVec

	// RecordErrorsTotal counts record-scoped classification failures
	// surfaced by recalculations.
	RecordErrorsTotal prometheus.Counter

	// RecalculationDuration is the wall time of one month recomputation.
	RecalculationDuration prometheus.Histogram

	// ExportsTotal counts generated xlsx reports.
	ExportsTotal prometheus.Counter
}

// promauto registers in the default registry; guard against double
// registration when tests build several handlers in one process.
var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

func newMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			RecalculationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "skywage",
					Name:      "recalculations_total",
					Help:      "Total number of monthly recalculations",
				},
				[]string{"outcome"},
			),

			RecordErrorsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "skywage",
					Name:      "record_errors_total",
					Help:      "Total number of record-scoped calculation errors",
				},
			),

			RecalculationDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "skywage",
					Name:      "recalculation_duration_seconds",
					Help:      "Time to recompute one user-month",
					Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
				},
			),

			ExportsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "skywage",
					Name:      "exports_total",
					Help:      "Total number of generated salary reports",
				},
			),
		}
	})
	return sharedMetrics
}
