package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = pebble.ErrNotFound

// FsyncMode selects when committed batches reach the WAL on disk.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every commit. Log appends are
	// acknowledged only once durable.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble group WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to Pebble. Used by throwaway logs (demo,
	// tests) where a crash loses nothing of value.
	FsyncModeNever
)

func (m FsyncMode) String() string {
	switch m {
	case FsyncModeAlways:
		return "always"
	case FsyncModeInterval:
		return "interval"
	case FsyncModeNever:
		return "never"
	default:
		return "unspecified"
	}
}

// ParseFsyncMode maps a config value ("always", "interval", "never") to a mode.
// The empty string means always.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	default:
		return FsyncModeUnspecified, fmt.Errorf("pebble: unknown fsync mode %q", s)
	}
}

const defaultSyncInterval = 5 * time.Millisecond

type Options struct {
	// DataDir is the Pebble directory; created if missing.
	DataDir string
	Fsync   FsyncMode
	// FsyncInterval bounds WAL sync batching under FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions overrides the Pebble defaults when set.
	PebbleOptions *pebble.Options
	Metrics       MetricsHook
}

// MetricsHook observes store traffic. PromMetrics is the production hook.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

type NoopMetrics struct{}

func (NoopMetrics) ObserveWrite(time.Duration, int)            {}
func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

// DB is the Pebble handle shared by the event logs, the raft log store and
// raft's stable store. Each keeps to its own key prefix.
type DB struct {
	inner   *pebble.DB
	mode    FsyncMode
	metrics MetricsHook
}

func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	mode := opts.Fsync
	if mode == FsyncModeUnspecified {
		mode = FsyncModeInterval
	}
	if mode == FsyncModeInterval {
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = defaultSyncInterval
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.DataDir, err)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &DB{inner: inner, mode: mode, metrics: metrics}, nil
}

func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// Mode reports the effective fsync mode.
func (db *DB) Mode() FsyncMode { return db.mode }

func (db *DB) writeOptions() *pebble.WriteOptions {
	if db.mode == FsyncModeAlways {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (db *DB) NewBatch() *pebble.Batch { return db.inner.NewBatch() }

// CommitBatch commits b under the store's fsync mode. The caller still owns
// (and closes) b.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	size, ops := b.Len(), int(b.Count())
	err := b.Commit(db.writeOptions())
	db.metrics.ObserveBatchCommit(time.Since(start), ops, size)
	return err
}

// Set writes a single key through a one-entry batch.
func (db *DB) Set(key, value []byte) error {
	start := time.Now()
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		return err
	}
	db.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

// Get returns a copy of the value stored at key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// NewRangeIter iterates keys in [low, high).
func (db *DB) NewRangeIter(low, high []byte) (*pebble.Iterator, error) {
	return db.inner.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
}

// CompactRange asks Pebble to compact [start, end), typically after a log
// trim left a run of tombstones behind.
func (db *DB) CompactRange(start, end []byte) error {
	return db.inner.Compact(start, end, true)
}

// Ping opens and closes an iterator to confirm the store is usable.
func (db *DB) Ping() error {
	if db == nil || db.inner == nil {
		return errors.New("pebble: not open")
	}
	it, err := db.inner.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}
