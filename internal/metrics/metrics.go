// Package metrics registers the Prometheus collectors exported at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_runs_total",
			Help: "Simulation runs that reached a terminal state",
		},
		[]string{"strategy", "state"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradesim_run_duration_seconds",
			Help:    "Wall time of a simulation run from start to terminal state",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)

	activeRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradesim_active_runs",
			Help: "Simulation runs currently executing",
		},
	)

	tradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_trades_total",
			Help: "Simulated fills",
		},
		[]string{"side", "reason"},
	)

	rejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_rejections_total",
			Help: "Signals rejected by the risk manager",
		},
		[]string{"reason"},
	)

	dataLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradesim_data_load_duration_seconds",
			Help:    "Time spent materialising a run's dataset from the stores",
			Buckets: prometheus.DefBuckets,
		},
	)

	ingestRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_ingest_records_total",
			Help: "Records written by the ingest gatherers",
		},
		[]string{"kind"},
	)
)

// RunStarted marks a run as executing.
func RunStarted() { activeRuns.Inc() }

// RunFinished records a run reaching state after d.
func RunFinished(strategy, state string, d time.Duration) {
	activeRuns.Dec()
	runsTotal.WithLabelValues(strategy, state).Inc()
	runDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordTrade counts one fill.
func RecordTrade(side, reason string) {
	tradesTotal.WithLabelValues(side, reason).Inc()
}

// RecordRejection counts one rejected signal.
func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveDataLoad records how long a dataset took to load.
func ObserveDataLoad(d time.Duration) {
	dataLoadDuration.Observe(d.Seconds())
}

// RecordIngest counts n records of kind written by a gatherer.
func RecordIngest(kind string, n int) {
	ingestRecords.WithLabelValues(kind).Add(float64(n))
}
