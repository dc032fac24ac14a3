package replog

import (
	"context"
	"errors"
)

// Index is a position in the replicated log. The first entry has index 1;
// 0 means "nothing".
type Index = uint64

var (
	// ErrNotLeader is returned by Append on a replica that does not currently
	// accept writes.
	ErrNotLeader = errors.New("replog: not leader")
	// ErrClosed is returned once the log has been shut down and every
	// committed entry has been observed.
	ErrClosed = errors.New("replog: closed")
	// ErrIndexGap reports a read that skipped over a committed index.
	ErrIndexGap = errors.New("replog: index gap")
)

// Entry is a committed log entry.
type Entry struct {
	Index Index
	Term  uint64
	Data  []byte
}

// Leader accepts new entries. Append returns once the entry is committed
// and reports its index.
type Leader interface {
	Append(ctx context.Context, data []byte) (Index, error)
}

// Follower exposes the committed prefix of the log in index order.
type Follower interface {
	// FirstIndex is the lowest index still retained.
	FirstIndex() Index
	// CommitIndex is the highest committed index, 0 when empty.
	CommitIndex() Index
	// Read returns up to limit committed entries starting at from.
	Read(from Index, limit int) ([]Entry, error)
	// WaitForCommit blocks until CommitIndex() > after and returns the new
	// commit index. It returns ErrClosed once the log is closed and no entry
	// beyond after will ever commit.
	WaitForCommit(ctx context.Context, after Index) (Index, error)
}

// Releaser is implemented by followers that can drop a consumed prefix.
type Releaser interface {
	Release(ctx context.Context, through Index) error
}
