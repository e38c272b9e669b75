// Package metrics exposes pipeline counters and histograms over a
// private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Kestrel pipeline metrics.
type Collector struct {
	registry *prometheus.Registry

	transactionsScored prometheus.Counter
	recordsRejected    prometheus.Counter
	alertsRaised       prometheus.Counter
	runsCompleted      prometheus.Counter
	runsFailed         prometheus.Counter

	stepDuration *prometheus.HistogramVec
	riskScores   prometheus.Histogram
	levelCounts  *prometheus.GaugeVec
}

// NewCollector creates the collector with its own registry, so tests
// can construct several without duplicate-registration panics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		transactionsScored: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "kestrel_transactions_scored_total",
			Help: "Total number of scored transactions",
		}),
		recordsRejected: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "kestrel_records_rejected_total",
			Help: "Total number of input rows rejected during loading",
		}),
		alertsRaised: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "kestrel_alerts_total",
			Help: "Total number of alerts raised for flagged transactions",
		}),
		runsCompleted: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "kestrel_runs_completed_total",
			Help: "Total number of completed pipeline runs",
		}),
		runsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "kestrel_runs_failed_total",
			Help: "Total number of failed pipeline runs",
		}),
		stepDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kestrel_step_duration_seconds",
			Help:    "Time taken by each pipeline step",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		riskScores: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_risk_score_distribution",
			Help:    "Distribution of computed risk scores",
			Buckets: []float64{0, 0.3, 0.6, 0.8, 1.2, 2.2},
		}),
		levelCounts: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "kestrel_risk_level_transactions",
			Help: "Transactions per risk level in the latest run",
		}, []string{"level"}),
	}
}

// RecordScore observes one scored transaction.
func (c *Collector) RecordScore(score float64) {
	c.transactionsScored.Inc()
	c.riskScores.Observe(score)
}

// RecordRejected counts rows dropped during loading.
func (c *Collector) RecordRejected(n int) {
	c.recordsRejected.Add(float64(n))
}

// RecordAlert counts a raised alert.
func (c *Collector) RecordAlert() {
	c.alertsRaised.Inc()
}

// RecordStep observes a pipeline step's duration.
func (c *Collector) RecordStep(step string, d time.Duration) {
	c.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RecordRun counts a finished pipeline run.
func (c *Collector) RecordRun(success bool) {
	if success {
		c.runsCompleted.Inc()
	} else {
		c.runsFailed.Inc()
	}
}

// SetLevelCount publishes the latest per-level transaction count.
func (c *Collector) SetLevelCount(level string, count int64) {
	c.levelCounts.WithLabelValues(level).Set(float64(count))
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
