package pebblestore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics is a MetricsHook backed by Prometheus histograms.
type PromMetrics struct {
	writeDur  prometheus.Histogram
	readDur   prometheus.Histogram
	commitDur prometheus.Histogram
	bytes     *prometheus.CounterVec
}

// NewPromMetrics creates storage metrics under the given namespace.
func NewPromMetrics(namespace string) *PromMetrics {
	const subsystem = "storage"
	buckets := prometheus.ExponentialBuckets(1e-5, 4, 10)
	return &PromMetrics{
		writeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_duration_seconds",
			Help:      "Latency of single-key writes",
			Buckets:   buckets,
		}),
		readDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "read_duration_seconds",
			Help:      "Latency of point reads",
			Buckets:   buckets,
		}),
		commitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_commit_duration_seconds",
			Help:      "Latency of batch commits",
			Buckets:   buckets,
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_total",
			Help:      "Bytes moved through the store by operation",
		}, []string{"op"}),
	}
}

func (m *PromMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.writeDur.Observe(elapsed.Seconds())
	m.bytes.WithLabelValues("write").Add(float64(bytes))
}

func (m *PromMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.readDur.Observe(elapsed.Seconds())
	m.bytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *PromMetrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.commitDur.Observe(elapsed.Seconds())
	m.bytes.WithLabelValues("commit").Add(float64(bytes))
}

// PrometheusCollectors returns the collectors to register.
func (m *PromMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.writeDur, m.readDur, m.commitDur, m.bytes}
}
