package eventlog

import (
	"context"
	"time"
)

// WaitForAppend blocks until either a new append occurs or timeout elapses.
// It returns true if woken by an append (or Close), false on timeout.
func (l *Log) WaitForAppend(timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// WaitForAppendContext blocks until the last index exceeds after, the log is
// closed, or ctx is done. It returns the last index observed. Once closed and
// nothing beyond after exists, it returns ErrClosed.
func (l *Log) WaitForAppendContext(ctx context.Context, after uint64) (uint64, error) {
	for {
		l.mu.Lock()
		last, closed, ch := l.lastSeq, l.closed, l.notifyCh
		l.mu.Unlock()
		if last > after {
			return last, nil
		}
		if closed {
			return last, ErrClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
}
