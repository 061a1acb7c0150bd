// Package metrics holds the prometheus instruments of the coordinator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolledback"
	OutcomeFailed     = "failed"
	OutcomeSevere     = "severe"
)

// Collector groups the instruments. A nil *Collector is valid and records
// nothing.
type Collector struct {
	completed         *prometheus.CounterVec
	inFlight          *prometheus.GaugeVec
	duration          *prometheus.HistogramVec
	deferredRollbacks prometheus.Counter
	sizeRejections    prometheus.Counter
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		completed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgtx",
			Name:      "transactions_completed_total",
			Help:      "Transactions that reached an outcome, by type and outcome.",
		}, []string{"type", "outcome"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "msgtx",
			Name:      "transactions_in_flight",
			Help:      "Transactions created and not yet completed.",
		}, []string{"type"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "msgtx",
			Name:      "protocol_duration_seconds",
			Help:      "Time spent in prepare, commit and rollback.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"op"}),
		deferredRollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "msgtx",
			Name:      "deferred_rollbacks_total",
			Help:      "Rollback requests queued behind an in-flight prepare or commit.",
		}),
		sizeRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: "msgtx",
			Name:      "size_limit_rejections_total",
			Help:      "IncrementCurrentSize calls refused by the maximum transaction size.",
		}),
	}
}

func (c *Collector) Started(txType string) {
	if c == nil {
		return
	}
	c.inFlight.WithLabelValues(txType).Inc()
}

func (c *Collector) Completed(txType, outcome string) {
	if c == nil {
		return
	}
	c.completed.WithLabelValues(txType, outcome).Inc()
	if outcome == OutcomeCommitted || outcome == OutcomeRolledBack {
		c.inFlight.WithLabelValues(txType).Dec()
	}
}

func (c *Collector) Observe(op string, start time.Time) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (c *Collector) DeferredRollback() {
	if c == nil {
		return
	}
	c.deferredRollbacks.Inc()
}

func (c *Collector) SizeRejected() {
	if c == nil {
		return
	}
	c.sizeRejections.Inc()
}
