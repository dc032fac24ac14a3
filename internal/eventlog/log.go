package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/logmux/internal/storage/pebble"
)

var (
	ErrNotFound = errors.New("eventlog: entry not found")
	ErrClosed   = errors.New("eventlog: log closed")
	// ErrIndexGap is returned by AppendAt when the index is not the next one.
	ErrIndexGap = errors.New("eventlog: index is not contiguous")
	ErrCorrupt  = errors.New("eventlog: corrupt record")
)

// AppendRecord represents a single appendable entry.
type AppendRecord struct {
	Header  []byte
	Payload []byte
}

// Log provides append-only, contiguously indexed storage for one named log.
// Indices start at 1. The retained range is [first, last]; the log is empty
// when first == last+1.
type Log struct {
	db   *pebblestore.DB
	name string

	mu       sync.Mutex
	first    uint64
	lastSeq  uint64
	notifyCh chan struct{}
	closed   bool
}

// OpenLog initializes a Log and loads its bounds from metadata (if any).
func OpenLog(db *pebblestore.DB, name string) (*Log, error) {
	if name == "" {
		return nil, errors.New("eventlog: log name is required")
	}
	l := &Log{db: db, name: name, notifyCh: make(chan struct{})}
	if meta, err := db.Get(KeyLogMeta(name)); err == nil && len(meta) >= 8 {
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	l.first = 1
	if f, err := db.Get(KeyLogFirst(name)); err == nil && len(f) >= 8 {
		l.first = binary.BigEndian.Uint64(f[:8])
	}
	if l.first > l.lastSeq+1 {
		return nil, fmt.Errorf("eventlog: inconsistent bounds for %q: first=%d last=%d", name, l.first, l.lastSeq)
	}
	return l, nil
}

// Name returns the log name.
func (l *Log) Name() string { return l.name }

// FirstIndex returns the lowest retained index.
func (l *Log) FirstIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.first
}

// LastIndex returns the highest appended index (0 for a fresh log).
func (l *Log) LastIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Append appends the provided records as a single atomic batch. Returns assigned indices.
func (l *Log) Append(ctx context.Context, recs []AppendRecord) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	b := l.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(recs))
	next := l.lastSeq
	for i, r := range recs {
		next++
		if err := b.Set(KeyLogEntry(l.name, next), EncodeRecord(r.Header, r.Payload), nil); err != nil {
			return nil, err
		}
		seqs[i] = next
	}
	if err := l.commitLocked(ctx, b, next); err != nil {
		return nil, err
	}
	return seqs, nil
}

// AppendAt appends rec at exactly index, which must be LastIndex()+1.
// Mirrors use it to copy a remote log while preserving its numbering.
func (l *Log) AppendAt(ctx context.Context, index uint64, rec AppendRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if index != l.lastSeq+1 {
		// An empty log may start anywhere; the source may have been compacted.
		if l.lastSeq != 0 || index == 0 {
			return fmt.Errorf("%w: have last=%d, got %d", ErrIndexGap, l.lastSeq, index)
		}
	}
	b := l.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyLogEntry(l.name, index), EncodeRecord(rec.Header, rec.Payload), nil); err != nil {
		return err
	}
	first := l.first
	if l.lastSeq == 0 && index > 1 {
		var fb [8]byte
		binary.BigEndian.PutUint64(fb[:], index)
		if err := b.Set(KeyLogFirst(l.name), fb[:], nil); err != nil {
			return err
		}
		first = index
	}
	if err := l.commitLocked(ctx, b, index); err != nil {
		return err
	}
	l.first = first
	return nil
}

// commitLocked writes the new last index into b, commits and wakes waiters.
func (l *Log) commitLocked(ctx context.Context, b *pebble.Batch, last uint64) error {
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], last)
	if err := b.Set(KeyLogMeta(l.name), meta[:], nil); err != nil {
		return err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	l.lastSeq = last
	l.notifyLocked()
	return nil
}

// Close rejects further appends and wakes every waiter. Stored entries remain
// readable.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.notifyCh)
	return nil
}

// Closed reports whether Close has been called.
func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// notifyLocked wakes all current waiters by closing and replacing the channel.
func (l *Log) notifyLocked() {
	if l.closed {
		return
	}
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
}
