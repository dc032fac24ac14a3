package streams

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rzbill/logmux/internal/replog"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

// Demultiplexer is the read side: a single consumption loop reads the shared
// log in index order and routes every decoded value into the inbox of the
// stream it addresses.
type Demultiplexer struct {
	spec      *Spec
	follower  replog.Follower
	logger    logpkg.Logger
	metrics   *Metrics
	readBatch int

	consumers map[StreamID]*ConsumerBase
	waits     *waitRegistry

	listening atomic.Bool
	closed    atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	err      error
	done     chan struct{}
	doneOnce sync.Once
}

// NewDemultiplexer binds spec to a follower. Nothing is consumed before
// Listen.
func NewDemultiplexer(spec *Spec, follower replog.Follower, opts ...Option) *Demultiplexer {
	o := buildOptions(opts)
	d := &Demultiplexer{
		spec:      spec,
		follower:  follower,
		logger:    o.logger.WithComponent("demultiplexer"),
		metrics:   o.metrics,
		readBatch: o.readBatch,
		consumers: make(map[StreamID]*ConsumerBase, len(spec.ordered)),
		waits:     &waitRegistry{onChange: o.metrics.observePending},
		done:      make(chan struct{}),
	}
	for _, desc := range spec.ordered {
		d.consumers[desc.ID] = &ConsumerBase{d: d, desc: desc, box: newInbox()}
	}
	return d
}

func (d *Demultiplexer) Spec() *Spec { return d.spec }

// Stream returns the read handle of a declared stream. Every call for the
// same id returns the same handle.
func (d *Demultiplexer) Stream(id StreamID) (*ConsumerBase, error) {
	c, ok := d.consumers[id]
	if !ok {
		return nil, &MisuseError{Op: "stream", Reason: fmt.Sprintf("stream %d is not declared", id)}
	}
	return c, nil
}

// Listen starts the consumption loop. It may be called once; the loop runs
// until the follower closes, a fatal error occurs, ctx ends or Close.
func (d *Demultiplexer) Listen(ctx context.Context) error {
	if d.closed.Load() {
		return &MisuseError{Op: "listen", Reason: "demultiplexer is closed"}
	}
	if !d.listening.CompareAndSwap(false, true) {
		return &MisuseError{Op: "listen", Reason: "already listening"}
	}
	lctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	if d.closed.Load() {
		cancel()
	}
	go d.run(lctx)
	return nil
}

func (d *Demultiplexer) run(ctx context.Context) {
	defer d.markDone()
	next := max(d.follower.FirstIndex(), 1)
	// Until the first entry is routed the start position follows the log's
	// retained prefix, which moves when a replica installs a snapshot or a
	// mirror starts copying a compacted upstream.
	started := false
	d.logger.Info("consuming log", logpkg.Uint64("from", next), logpkg.Int("streams", len(d.consumers)))
	for {
		if ctx.Err() != nil {
			d.stop(ctx.Err())
			return
		}
		if !started {
			next = max(next, d.follower.FirstIndex())
		}
		entries, err := d.follower.Read(next, d.readBatch)
		if err != nil {
			d.fail(fmt.Errorf("streams: read log at %d: %w", next, err))
			return
		}
		for _, e := range entries {
			if !started && e.Index > next {
				next = e.Index
			}
			if e.Index != next {
				d.fail(fmt.Errorf("%w: expected index %d, got %d", ErrLogGap, next, e.Index))
				return
			}
			if err := d.apply(e); err != nil {
				d.fail(err)
				return
			}
			started = true
			next++
		}
		if len(entries) > 0 {
			continue
		}
		// An empty read can race a concurrent append, so only a retained
		// prefix that moved past next is a gap.
		if first := d.follower.FirstIndex(); first > next {
			if started {
				d.fail(fmt.Errorf("%w: index %d is no longer retained (first %d)", ErrLogGap, next, first))
				return
			}
			continue
		}
		if d.follower.CommitIndex() >= next {
			continue
		}
		_, err = d.follower.WaitForCommit(ctx, next-1)
		switch {
		case err == nil:
		case errors.Is(err, replog.ErrClosed):
			d.logger.Info("log closed", logpkg.Uint64("applied", next-1))
			d.finish(nil, &AbortedWaitError{Cause: replog.ErrClosed})
			return
		case ctx.Err() != nil:
			d.stop(ctx.Err())
			return
		default:
			d.fail(fmt.Errorf("streams: wait for commit after %d: %w", next-1, err))
			return
		}
	}
}

func (d *Demultiplexer) apply(e replog.Entry) error {
	env, err := DecodeEnvelope(e.Data)
	if err != nil {
		return &SpecMismatchError{Index: e.Index, Cause: err}
	}
	td, ok := d.spec.LookupTag(env.Stream, env.Tag)
	if !ok {
		return &SpecMismatchError{Index: e.Index, Stream: env.Stream, Tag: env.Tag}
	}
	v, err := td.Decode(env.Payload)
	if err != nil {
		return &SpecMismatchError{Index: e.Index, Stream: env.Stream, Tag: env.Tag, Cause: err}
	}
	d.consumers[env.Stream].box.append(e.Index, v)
	d.metrics.observeApplied(env.Stream, e.Index)
	d.waits.advance(e.Index)
	return nil
}

// fail halts the loop on a fatal error and surfaces it to every reader.
func (d *Demultiplexer) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
	d.metrics.observeFatal()
	d.logger.Error("demultiplexer halted", logpkg.Err(err))
	d.finish(err, &AbortedWaitError{Cause: err})
}

// stop ends consumption because of cancellation or Close.
func (d *Demultiplexer) stop(cause error) {
	if d.closed.Load() {
		cause = nil
	}
	d.finish(&AbortedWaitError{Cause: cause}, &AbortedWaitError{Cause: cause})
}

func (d *Demultiplexer) finish(inboxErr, waitErr error) {
	for _, c := range d.consumers {
		c.box.finish(inboxErr)
	}
	d.waits.terminate(waitErr)
}

func (d *Demultiplexer) markDone() { d.doneOnce.Do(func() { close(d.done) }) }

// WaitForIndex resolves once the loop has processed idx, whichever stream
// the entry belonged to.
func (d *Demultiplexer) WaitForIndex(idx LogIndex) *Future[LogIndex] {
	f := newFuture[LogIndex]()
	w := &waiter{
		target: idx,
		index:  -1,
		fire:   func() { f.resolve(idx) },
		abort:  func(err error) { f.abort(err) },
	}
	f.release = func() { d.waits.remove(w) }
	d.waits.register(w)
	return f
}

// AppliedIndex is the highest index routed so far.
func (d *Demultiplexer) AppliedIndex() LogIndex { return d.waits.appliedIndex() }

// PendingWaits counts unresolved waits.
func (d *Demultiplexer) PendingWaits() int { return d.waits.size() }

// Done is closed when the loop has exited, or on Close if it never started.
func (d *Demultiplexer) Done() <-chan struct{} { return d.done }

// Err returns the fatal error that halted the loop, if any.
func (d *Demultiplexer) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close stops consumption and aborts every outstanding wait. Iterators end
// with an *AbortedWaitError after draining what was already routed.
func (d *Demultiplexer) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
		<-d.done
		return nil
	}
	if !d.listening.Load() {
		d.stop(nil)
		d.markDone()
		return nil
	}
	// Listen won the race but has not stored cancel yet; it cancels itself
	// after observing closed.
	<-d.done
	return nil
}

// ReleaseIndex is the highest index every open stream has released.
func (d *Demultiplexer) ReleaseIndex() LogIndex {
	var low LogIndex
	first := true
	for _, c := range d.consumers {
		if c.closed.Load() {
			continue
		}
		r := c.box.releasedThrough()
		if first || r < low {
			low, first = r, false
		}
	}
	if first {
		return d.AppliedIndex()
	}
	return low
}

// Compact asks the follower to drop entries every stream has released. It is
// a no-op for followers that cannot release.
func (d *Demultiplexer) Compact(ctx context.Context) (LogIndex, error) {
	rel, ok := d.follower.(replog.Releaser)
	if !ok {
		return 0, nil
	}
	through := min(d.ReleaseIndex(), d.AppliedIndex())
	if through == 0 {
		return 0, nil
	}
	if err := rel.Release(ctx, through); err != nil {
		return 0, fmt.Errorf("streams: release log through %d: %w", through, err)
	}
	d.logger.Debug("released log prefix", logpkg.Uint64("through", through))
	return through, nil
}
