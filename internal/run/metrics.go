package run

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hearthside/leadscore/internal/scoring"
)

// ==========================================
// PROMETHEUS METRICS
// ==========================================

var (
	runsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadscore_runs_completed_total",
		Help: "Scoring runs that committed successfully.",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leadscore_run_duration_seconds",
		Help:    "Wall-clock duration of a full scoring run.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	contactsScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadscore_contacts_scored_total",
		Help: "Contacts processed across all runs.",
	})

	contactAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadscore_contact_anomalies_total",
		Help: "Per-contact anomalies recorded on run audit rows.",
	})

	bucketPopulation = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leadscore_bucket_population",
		Help: "Contacts assigned to each bucket in the latest run.",
	}, []string{"bucket"})
)

// observeRun records one committed run.
func observeRun(run *scoring.ScoringRun, elapsed time.Duration) {
	runsCompleted.Inc()
	runDuration.Observe(elapsed.Seconds())
	contactsScored.Add(float64(run.ContactCount))
	contactAnomalies.Add(float64(len(run.Failures)))

	bucketPopulation.Reset()
	for id, count := range run.BucketCounts {
		bucketPopulation.WithLabelValues(id).Set(float64(count))
	}
}
