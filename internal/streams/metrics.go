package streams

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the multiplexing counters. A nil *Metrics records nothing.
type Metrics struct {
	inserts      *prometheus.CounterVec
	insertErrors *prometheus.CounterVec
	insertBytes  *prometheus.CounterVec
	applied      *prometheus.CounterVec
	appliedIndex prometheus.Gauge
	pendingWaits prometheus.Gauge
	fatal        prometheus.Counter
}

// NewMetrics creates the collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	const subsystem = "streams"
	labels := []string{"stream"}
	return &Metrics{
		inserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inserts_total",
			Help:      "Number of values appended per stream",
		}, labels),
		insertErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "insert_errors_total",
			Help:      "Number of failed inserts per stream",
		}, labels),
		insertBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "insert_bytes_total",
			Help:      "Envelope bytes appended per stream",
		}, labels),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entries_applied_total",
			Help:      "Number of log entries routed into each stream's inbox",
		}, labels),
		appliedIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "applied_index",
			Help:      "Highest log index processed by the demultiplexer",
		}),
		pendingWaits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_waits",
			Help:      "Number of unresolved waits",
		}),
		fatal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "demux_failures_total",
			Help:      "Number of demultiplexers halted by a fatal error",
		}),
	}
}

// PrometheusCollectors returns the collectors to register.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.inserts, m.insertErrors, m.insertBytes,
		m.applied, m.appliedIndex, m.pendingWaits, m.fatal,
	}
}

func streamLabel(id StreamID) string { return strconv.FormatUint(uint64(id), 10) }

func (m *Metrics) observeInsert(id StreamID, bytes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.insertErrors.WithLabelValues(streamLabel(id)).Inc()
		return
	}
	m.inserts.WithLabelValues(streamLabel(id)).Inc()
	m.insertBytes.WithLabelValues(streamLabel(id)).Add(float64(bytes))
}

func (m *Metrics) observeApplied(id StreamID, idx LogIndex) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(streamLabel(id)).Inc()
	m.appliedIndex.Set(float64(idx))
}

func (m *Metrics) observePending(n int) {
	if m == nil {
		return
	}
	m.pendingWaits.Set(float64(n))
}

func (m *Metrics) observeFatal() {
	if m == nil {
		return
	}
	m.fatal.Inc()
}
