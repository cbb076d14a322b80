package chunkio

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Metrics holds Prometheus collectors for pools and watchdogs. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	PoolHits       prometheus.Counter
	PoolMisses     prometheus.Counter
	PoolRecycled   prometheus.Counter
	PoolDropped    prometheus.Counter
	WatchdogStarts prometheus.Counter
	TimeoutsFired  prometheus.Counter
	QueueDepth     prometheus.Gauge
}

// NewMetrics builds unregistered collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		PoolHits:       counter("pool", "hits_total", "Segment acquisitions served from the free list."),
		PoolMisses:     counter("pool", "misses_total", "Segment acquisitions that allocated new storage."),
		PoolRecycled:   counter("pool", "recycled_total", "Segment storage returned to the free list."),
		PoolDropped:    counter("pool", "dropped_total", "Segment storage discarded because the pool was full."),
		WatchdogStarts: counter("watchdog", "starts_total", "Times the watchdog loop was (re)started."),
		TimeoutsFired:  counter("watchdog", "fired_total", "Async timeouts fired by the watchdog."),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "queue_depth",
			Help:      "Async timeouts currently waiting to fire.",
		}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var err error
	for _, c := range m.collectors() {
		err = multierr.Append(err, reg.Register(c))
	}
	return err
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PoolHits, m.PoolMisses, m.PoolRecycled, m.PoolDropped,
		m.WatchdogStarts, m.TimeoutsFired, m.QueueDepth,
	}
}

func (m *Metrics) poolHit() {
	if m != nil {
		m.PoolHits.Inc()
	}
}

func (m *Metrics) poolMiss() {
	if m != nil {
		m.PoolMisses.Inc()
	}
}

func (m *Metrics) poolRecycle() {
	if m != nil {
		m.PoolRecycled.Inc()
	}
}

func (m *Metrics) poolDrop() {
	if m != nil {
		m.PoolDropped.Inc()
	}
}

func (m *Metrics) watchdogStart() {
	if m != nil {
		m.WatchdogStarts.Inc()
	}
}

func (m *Metrics) timeoutFired() {
	if m != nil {
		m.TimeoutsFired.Inc()
	}
}

func (m *Metrics) queueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
