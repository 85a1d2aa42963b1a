// Prometheus instrumentation for the refresh pipeline. HTTP traffic metrics
// live in the middleware package; the collectors here cover the scheduled
// background work, which never passes through the HTTP layer.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// refreshRuns counts completed refresh runs.
	refreshRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_runs_total",
		Help: "Total number of completed price refresh runs.",
	})

	// refreshOutcomes counts per-deal outcomes across all runs. The label
	// set is the closed outcome enum, so cardinality stays bounded.
	refreshOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_deals_total",
			Help: "Total number of per-deal refresh outcomes.",
		},
		[]string{"outcome"},
	)

	// refreshDuration records wall-clock duration of full refresh runs.
	refreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "refresh_run_duration_seconds",
		Help:    "Duration of price refresh runs in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})
)

func init() {
	prometheus.MustRegister(refreshRuns, refreshOutcomes, refreshDuration)
}
