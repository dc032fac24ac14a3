package replog

import (
	"context"
	"errors"
	"sync"

	"github.com/rzbill/logmux/internal/eventlog"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

// Local is a single-replica log. It is always in sync with itself, so an
// append is committed as soon as the event log persists it. Leadership can be
// toggled to exercise leader-change handling without a cluster.
type Local struct {
	log    *eventlog.Log
	logger logpkg.Logger

	mu     sync.RWMutex
	term   uint64
	leader bool
}

// LocalOption configures a Local log.
type LocalOption func(*Local)

func WithLocalLogger(l logpkg.Logger) LocalOption {
	return func(lc *Local) { lc.logger = l }
}

// NewLocal wraps l. The replica starts as leader of term 1, or of the term
// recorded in the last entry when reopening.
func NewLocal(l *eventlog.Log, opts ...LocalOption) (*Local, error) {
	lc := &Local{log: l, logger: logpkg.NewNopLogger(), term: 1, leader: true}
	for _, o := range opts {
		o(lc)
	}
	if last := l.LastIndex(); last > 0 {
		it, err := l.Get(last)
		if err != nil && !errors.Is(err, eventlog.ErrNotFound) {
			return nil, err
		}
		if t := eventlog.TermFromHeader(it.Header); t > lc.term {
			lc.term = t
		}
	}
	return lc, nil
}

func (lc *Local) Append(ctx context.Context, data []byte) (Index, error) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	if !lc.leader {
		return 0, ErrNotLeader
	}
	seqs, err := lc.log.Append(ctx, []eventlog.AppendRecord{{Header: eventlog.TermHeader(lc.term), Payload: data}})
	if err != nil {
		if errors.Is(err, eventlog.ErrClosed) {
			return 0, ErrClosed
		}
		return 0, err
	}
	return seqs[0], nil
}

// StepDown makes the replica reject appends until Campaign is called.
func (lc *Local) StepDown() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.leader {
		lc.logger.Info("stepping down", logpkg.Uint64("term", lc.term))
	}
	lc.leader = false
}

// Campaign makes the replica leader of a new term and returns it.
func (lc *Local) Campaign() uint64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.term++
	lc.leader = true
	lc.logger.Info("became leader", logpkg.Uint64("term", lc.term))
	return lc.term
}

func (lc *Local) IsLeader() bool {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.leader
}

func (lc *Local) Term() uint64 {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.term
}

// Reader returns a Follower view of the committed log.
func (lc *Local) Reader() *LogFollower { return NewLogFollower(lc.log) }

// Close closes the underlying event log. Waiting readers drain the remaining
// entries and then observe ErrClosed.
func (lc *Local) Close() error { return lc.log.Close() }
