package replog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/logmux/internal/eventlog"
)

// LogFollower is a Follower over a local event log. Every entry in the log is
// committed by construction; replication adapters only append what their
// consensus layer has already agreed on.
type LogFollower struct {
	log *eventlog.Log
}

func NewLogFollower(l *eventlog.Log) *LogFollower { return &LogFollower{log: l} }

func (f *LogFollower) FirstIndex() Index  { return f.log.FirstIndex() }
func (f *LogFollower) CommitIndex() Index { return f.log.LastIndex() }

func (f *LogFollower) Read(from Index, limit int) ([]Entry, error) {
	items, err := f.log.Read(from, limit)
	if err != nil {
		return nil, fmt.Errorf("replog: read %s from %d: %w", f.log.Name(), from, err)
	}
	out := make([]Entry, len(items))
	for i, it := range items {
		out[i] = Entry{Index: it.Index, Term: eventlog.TermFromHeader(it.Header), Data: it.Payload}
	}
	return out, nil
}

// StoredBytes approximates the on-disk size of the retained entries.
func (f *LogFollower) StoredBytes() (int64, error) { return f.log.ApproxBytes() }

func (f *LogFollower) WaitForCommit(ctx context.Context, after Index) (Index, error) {
	last, err := f.log.WaitForAppendContext(ctx, after)
	if errors.Is(err, eventlog.ErrClosed) {
		return last, ErrClosed
	}
	return last, err
}

func (f *LogFollower) Release(ctx context.Context, through Index) error {
	_, err := f.log.TrimThrough(ctx, through, 0, 0)
	return err
}
