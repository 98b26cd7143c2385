// Package metrics records grouping activity for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is safe to use as a nil pointer, in which case it records nothing.
type Collector struct {
	solves   *prometheus.CounterVec
	score    prometheus.Histogram
	attempts prometheus.Histogram
	duration prometheus.Histogram
	appends  prometheus.Counter
}

// New registers the collector's metrics with reg under namespace, which
// defaults to "groups".
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "groups"
	}

	c := &Collector{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Partition requests by action and outcome.",
		}, []string{"action", "outcome"}),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_score",
			Help:      "Conflict score of returned groupings.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 1000, 2000},
		}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_attempts",
			Help:      "Attempts used before returning a grouping.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Time spent searching for a grouping.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_appends_total",
			Help:      "History entries saved.",
		}),
	}
	for _, m := range []prometheus.Collector{c.solves, c.score, c.attempts, c.duration, c.appends} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) Solved(action string, score, attempts int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.solves.WithLabelValues(action, "ok").Inc()
	c.score.Observe(float64(score))
	c.attempts.Observe(float64(attempts))
	c.duration.Observe(elapsed.Seconds())
}

func (c *Collector) SolveFailed(action string) {
	if c == nil {
		return
	}
	c.solves.WithLabelValues(action, "invalid").Inc()
}

func (c *Collector) Appended() {
	if c == nil {
		return
	}
	c.appends.Inc()
}
