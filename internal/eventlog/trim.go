package eventlog

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"
)

// TrimThrough deletes entries with index <= through and advances the first
// retained index. Deletes are committed in batches of up to batchLimit keys
// with an optional throttle between commits, then the trimmed key range is
// compacted. Returns the number deleted.
func (l *Log) TrimThrough(ctx context.Context, through uint64, batchLimit int, throttle time.Duration) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	l.mu.Lock()
	if through > l.lastSeq {
		through = l.lastSeq
	}
	start := l.first
	l.mu.Unlock()
	if through < start {
		return 0, nil
	}

	deleted := 0
	for lo := start; lo <= through; {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		hi := lo + uint64(batchLimit) - 1
		if hi > through {
			hi = through
		}
		b := l.db.NewBatch()
		if err := b.DeleteRange(KeyLogEntry(l.name, lo), KeyLogEntry(l.name, hi+1), nil); err != nil {
			b.Close()
			return deleted, err
		}
		var fb [8]byte
		binary.BigEndian.PutUint64(fb[:], hi+1)
		if err := b.Set(KeyLogFirst(l.name), fb[:], nil); err != nil {
			b.Close()
			return deleted, err
		}
		// Hold the lock so first only moves forward together with the commit.
		l.mu.Lock()
		err := l.db.CommitBatch(ctx, b)
		if err == nil && hi+1 > l.first {
			l.first = hi + 1
		}
		l.mu.Unlock()
		b.Close()
		if err != nil {
			return deleted, err
		}
		deleted += int(hi - lo + 1)
		lo = hi + 1
		if throttle > 0 && lo <= through {
			time.Sleep(throttle)
		}
	}
	if err := l.db.CompactRange(KeyLogEntry(l.name, start), KeyLogEntry(l.name, through+1)); err != nil {
		return deleted, fmt.Errorf("eventlog: compact trimmed range: %w", err)
	}
	return deleted, nil
}

// Restore replaces the whole log content with items, which must be
// contiguous. It is used to install replication snapshots.
func (l *Log) Restore(ctx context.Context, items []Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	for i := 1; i < len(items); i++ {
		if items[i].Index != items[i-1].Index+1 {
			return ErrIndexGap
		}
	}
	low, high := entryBounds(l.name)
	b := l.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(low, high, nil); err != nil {
		return err
	}
	first, last := uint64(1), uint64(0)
	if len(items) > 0 {
		first, last = items[0].Index, items[len(items)-1].Index
	}
	for _, it := range items {
		if err := b.Set(KeyLogEntry(l.name, it.Index), EncodeRecord(it.Header, it.Payload), nil); err != nil {
			return err
		}
	}
	var fb [8]byte
	binary.BigEndian.PutUint64(fb[:], first)
	if err := b.Set(KeyLogFirst(l.name), fb[:], nil); err != nil {
		return err
	}
	if err := l.commitLocked(ctx, b, last); err != nil {
		return err
	}
	l.first = first
	return nil
}

// ApproxBytes sums the stored value sizes of all retained entries.
func (l *Log) ApproxBytes() (int64, error) {
	low, high := entryBounds(l.name)
	iter, err := l.db.NewRangeIter(low, high)
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	var total int64
	for ok := iter.First(); ok; ok = iter.Next() {
		total += int64(len(iter.Value()))
	}
	return total, iter.Error()
}
