package streams

import logpkg "github.com/rzbill/logmux/pkg/log"

type options struct {
	logger    logpkg.Logger
	metrics   *Metrics
	readBatch int
}

// Option configures a Multiplexer or Demultiplexer.
type Option func(*options)

func WithLogger(l logpkg.Logger) Option { return func(o *options) { o.logger = l } }

func WithMetrics(m *Metrics) Option { return func(o *options) { o.metrics = m } }

// WithReadBatch caps how many entries the demultiplexer reads per call.
func WithReadBatch(n int) Option { return func(o *options) { o.readBatch = n } }

func buildOptions(opts []Option) options {
	o := options{logger: logpkg.NewNopLogger(), readBatch: 256}
	for _, fn := range opts {
		fn(&o)
	}
	if o.readBatch <= 0 {
		o.readBatch = 256
	}
	return o
}
