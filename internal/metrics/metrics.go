// Package metrics defines the internal Prometheus instrumentation for the
// bitmap engine and event interceptor. The core never serves these itself;
// it only registers them on a prometheus.Registerer the host supplies.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is the full collection of counters/gauges this module exposes.
type Set struct {
	EventsProcessed prometheus.Counter
	EventsDropped   prometheus.Counter
	QueueDepth      prometheus.Gauge
	DirtyBlocks     prometheus.Gauge
	NewBlocks       prometheus.Gauge
	DeletedBlocks   prometheus.Gauge
	TotalBlocks     prometheus.Gauge
}

// New constructs a Set. Call Register to attach it to a registry; until
// then the metrics simply accumulate in memory, which is harmless and lets
// tests construct a Set without a registry at all.
func New(namespace string) *Set {
	return &Set{
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_processed_total",
			Help: "Events successfully dispatched to the bitmap engine.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_total",
			Help: "Events dropped because the event queue was full.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "event_queue_depth",
			Help: "Current number of events waiting in the ring buffer.",
		}),
		DirtyBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dirty_blocks",
			Help: "Number of blocks currently in the DIRTY state.",
		}),
		NewBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "new_blocks",
			Help: "Number of blocks currently in the NEW state.",
		}),
		DeletedBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "deleted_blocks",
			Help: "Number of blocks currently in the DELETED state.",
		}),
		TotalBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "total_blocks",
			Help: "Number of blocks with live metadata, any state.",
		}),
	}
}

// Register attaches every collector in s to reg.
func (s *Set) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		s.EventsProcessed, s.EventsDropped, s.QueueDepth,
		s.DirtyBlocks, s.NewBlocks, s.DeletedBlocks, s.TotalBlocks,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
