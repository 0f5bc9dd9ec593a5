// Package metrics exports relationship reconciliation outcomes to
// Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/deferring/internal/relation"
)

const namespace = "deferring"

// Observer implements relation.Observer with Prometheus collectors. Every
// series is labeled by relationship name.
//
// Thread-safety: Observer is safe for concurrent use.
type Observer struct {
	loads      *prometheus.CounterVec
	loadedSize *prometheus.HistogramVec
	reconciles *prometheus.CounterVec
	links      *prometheus.CounterVec
	unlinks    *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var _ relation.Observer = (*Observer)(nil)

// NewObserver registers the collectors with reg. A nil reg uses the default
// registerer.
func NewObserver(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Observer{
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Baselines read from storage",
		}, []string{"relationship"}),
		loadedSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loaded_members",
			Help:      "Members per loaded baseline",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500},
		}, []string{"relationship"}),
		reconciles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Successful reconciliations",
		}, []string{"relationship"}),
		links: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_written_total",
			Help:      "Links written by reconciliation",
		}, []string{"relationship"}),
		unlinks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlinks_written_total",
			Help:      "Unlinks written by reconciliation",
		}, []string{"relationship"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_failures_total",
			Help:      "Failed reconciliations by failing operation",
		}, []string{"relationship", "op"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Reconciliation latency, failed attempts included",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"relationship", "outcome"}),
	}
}

// Loaded implements relation.Observer.
func (o *Observer) Loaded(relationship string, size int) {
	o.loads.WithLabelValues(relationship).Inc()
	o.loadedSize.WithLabelValues(relationship).Observe(float64(size))
}

// Reconciled implements relation.Observer.
func (o *Observer) Reconciled(relationship string, links, unlinks int, elapsed time.Duration) {
	o.reconciles.WithLabelValues(relationship).Inc()
	o.links.WithLabelValues(relationship).Add(float64(links))
	o.unlinks.WithLabelValues(relationship).Add(float64(unlinks))
	o.duration.WithLabelValues(relationship, "ok").Observe(elapsed.Seconds())
}

// ReconcileFailed implements relation.Observer.
func (o *Observer) ReconcileFailed(relationship string, op relation.Op, elapsed time.Duration) {
	o.failures.WithLabelValues(relationship, string(op)).Inc()
	o.duration.WithLabelValues(relationship, "failed").Observe(elapsed.Seconds())
}
