package streams

import (
	"context"
	"sync"

	"github.com/rzbill/logmux/internal/replog"
)

// memLog is an in-memory replog.Leader and replog.Follower. Tests may push
// raw entries to simulate foreign writers and broken logs.
type memLog struct {
	mu       sync.Mutex
	entries  []replog.Entry
	first    replog.Index
	notifyCh chan struct{}
	closed   bool
	leader   bool
}

func newMemLog() *memLog {
	return &memLog{first: 1, notifyCh: make(chan struct{}), leader: true}
}

func (m *memLog) Append(_ context.Context, data []byte) (replog.Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, replog.ErrClosed
	}
	if !m.leader {
		return 0, replog.ErrNotLeader
	}
	idx := m.lastLocked() + 1
	m.entries = append(m.entries, replog.Entry{Index: idx, Term: 1, Data: append([]byte(nil), data...)})
	m.notifyLocked()
	return idx, nil
}

// pushRaw appends an entry with an explicit index, bypassing contiguity.
func (m *memLog) pushRaw(idx replog.Index, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, replog.Entry{Index: idx, Data: data})
	m.notifyLocked()
}

// setFirst drops everything below idx, as a snapshot install would.
func (m *memLog) setFirst(idx replog.Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Index >= idx {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	m.first = idx
	m.notifyLocked()
}

func (m *memLog) setLeader(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leader = v
}

func (m *memLog) lastLocked() replog.Index {
	if len(m.entries) == 0 {
		return m.first - 1
	}
	return m.entries[len(m.entries)-1].Index
}

func (m *memLog) notifyLocked() {
	close(m.notifyCh)
	m.notifyCh = make(chan struct{})
}

func (m *memLog) FirstIndex() replog.Index {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.first
}

func (m *memLog) CommitIndex() replog.Index {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLocked()
}

func (m *memLog) Read(from replog.Index, limit int) ([]replog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []replog.Entry
	for _, e := range m.entries {
		if e.Index < from {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memLog) WaitForCommit(ctx context.Context, after replog.Index) (replog.Index, error) {
	for {
		m.mu.Lock()
		last, closed, ch := m.lastLocked(), m.closed, m.notifyCh
		m.mu.Unlock()
		if last > after {
			return last, nil
		}
		if closed {
			return last, replog.ErrClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
}

func (m *memLog) Release(_ context.Context, through replog.Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Index > through {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	if through+1 > m.first {
		m.first = through + 1
	}
	return nil
}

func (m *memLog) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.notifyLocked()
	}
}
