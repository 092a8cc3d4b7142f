// Package system exposes process wide run metrics.
package system

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vinceanalytics/keywords/internal/attr"
)

var (
	RowsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "keywords",
		Name:      "rows_processed_total",
		Help:      "Data rows scanned by completed attribution runs.",
	})
	RowsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "keywords",
		Name:      "rows_skipped_total",
		Help:      "Input rows dropped for a missing visitor ip.",
	})
	PurchasesFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "keywords",
		Name:      "purchases_found_total",
		Help:      "Purchases attributed to a search referral.",
	})
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "keywords",
		Name:      "job_duration_seconds",
		Help:      "Time taken to run both passes and land the report.",
		Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	Jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keywords",
		Name:      "jobs_total",
		Help:      "Attribution jobs by final status.",
	}, []string{"status"})
)

func init() {
	prometheus.DefaultRegisterer.MustRegister(
		RowsProcessed,
		RowsSkipped,
		PurchasesFound,
		JobDuration,
		Jobs,
	)
}

// Observe folds one finished run into the process counters.
func Observe(s attr.Stats, elapsed time.Duration) {
	RowsProcessed.Add(float64(s.RowsProcessed))
	RowsSkipped.Add(float64(s.RowsSkipped))
	PurchasesFound.Add(float64(s.PurchasesFound))
	JobDuration.Observe(elapsed.Seconds())
}
