package runner

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts batch evaluations. A nil *Metrics records nothing.
type Metrics struct {
	batches  prometheus.Counter
	failures prometheus.Counter
	draws    prometheus.Counter
	duration prometheus.Histogram
}

func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Number of batch evaluations started",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_failures_total",
			Help:      "Number of batch evaluations aborted by an error",
		}),
		draws: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draws_total",
			Help:      "Number of draws returned by successful batches",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of batch evaluations",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	err := errors.Join(
		registerer.Register(m.batches),
		registerer.Register(m.failures),
		registerer.Register(m.draws),
		registerer.Register(m.duration),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(samples int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.duration.Observe(elapsed.Seconds())
	if err != nil {
		m.failures.Inc()
		return
	}
	m.draws.Add(float64(samples))
}
