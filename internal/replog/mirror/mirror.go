package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rzbill/logmux/internal/eventlog"
	"github.com/rzbill/logmux/internal/replog"
	grpcserver "github.com/rzbill/logmux/internal/server/grpc"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

var errStreamEnded = errors.New("mirror: upstream ended the tail stream")

// ErrSpecMismatch is returned by Run when the upstream advertises a stream
// spec fingerprint different from the mirror's.
var ErrSpecMismatch = errors.New("mirror: upstream spec fingerprint differs")

// Mirror is a read replica: it copies a remote committed log into a local
// event log, preserving indices, and serves it as a replog.Follower.
type Mirror struct {
	*replog.LogFollower

	log    *eventlog.Log
	client *grpcserver.Client
	logger logpkg.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
	fingerprint    uint64

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option configures a Mirror.
type Option func(*Mirror)

func WithLogger(l logpkg.Logger) Option { return func(m *Mirror) { m.logger = l } }

// WithFingerprint makes the mirror refuse an upstream advertising a
// different spec fingerprint. Upstreams advertising none are accepted.
func WithFingerprint(fp uint64) Option { return func(m *Mirror) { m.fingerprint = fp } }

// WithBackoff bounds the reconnect delay.
func WithBackoff(initial, max time.Duration) Option {
	return func(m *Mirror) { m.initialBackoff, m.maxBackoff = initial, max }
}

func New(l *eventlog.Log, client *grpcserver.Client, opts ...Option) *Mirror {
	m := &Mirror{
		LogFollower:    replog.NewLogFollower(l),
		log:            l,
		client:         client,
		logger:         logpkg.NewNopLogger(),
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     5 * time.Second,
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.WithComponent("mirror")
	return m
}

// Run tails the upstream until ctx ends or the mirror is closed,
// reconnecting with exponential backoff. A gap between the local copy and
// the upstream log, or a spec fingerprint mismatch, is permanent and
// returned.
func (m *Mirror) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	if m.log.Closed() {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initialBackoff
	b.MaxInterval = m.maxBackoff
	b.MaxElapsedTime = 0

	op := func() error {
		err := m.tail(ctx, b)
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, eventlog.ErrClosed), errors.Is(err, eventlog.ErrIndexGap), errors.Is(err, ErrSpecMismatch):
			return backoff.Permanent(err)
		case err == nil:
			return errStreamEnded
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Warn("tail interrupted, reconnecting", logpkg.Err(err), logpkg.Duration("backoff", wait))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil || errors.Is(err, eventlog.ErrClosed) {
		return nil
	}
	return err
}

func (m *Mirror) tail(ctx context.Context, b backoff.BackOff) error {
	if m.fingerprint != 0 {
		fp, err := m.client.Fingerprint(ctx)
		if err != nil {
			return err
		}
		if fp != 0 && fp != m.fingerprint {
			return fmt.Errorf("%w: upstream %x, local %x", ErrSpecMismatch, fp, m.fingerprint)
		}
	}
	from := m.log.LastIndex() + 1
	stream, err := m.client.Tail(ctx, from)
	if err != nil {
		return err
	}
	m.logger.Debug("tailing upstream", logpkg.Uint64("from", from))
	for {
		e, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.log.AppendAt(ctx, e.Index, eventlog.AppendRecord{Header: eventlog.TermHeader(e.Term), Payload: e.Data}); err != nil {
			return err
		}
		b.Reset()
	}
}

// Close stops Run and closes the local copy. Readers drain it and then
// observe replog.ErrClosed.
func (m *Mirror) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return m.log.Close()
}
