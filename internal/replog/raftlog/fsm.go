package raftlog

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/rzbill/logmux/internal/eventlog"
)

// applyResult is what the FSM hands back through ApplyFuture.Response.
type applyResult struct {
	index uint64
	err   error
}

// entryHeader stores the raft term and raft index of an applied command. The
// raft index lets a restarted replica skip commands it already applied.
func entryHeader(term, raftIndex uint64) []byte {
	h := eventlog.TermHeader(term)
	return binary.BigEndian.AppendUint64(h, raftIndex)
}

func raftIndexFromHeader(h []byte) uint64 {
	if len(h) < 16 {
		return 0
	}
	return binary.BigEndian.Uint64(h[8:16])
}

// fsm appends every committed command to the event log. Event log indices
// are dense and assigned in raft commit order, so every replica numbers the
// same command identically regardless of raft's own configuration entries.
type fsm struct {
	log *eventlog.Log

	mu      sync.Mutex
	applied uint64
}

func newFSM(l *eventlog.Log) (*fsm, error) {
	f := &fsm{log: l}
	if err := f.loadApplied(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *fsm) loadApplied() error {
	last := f.log.LastIndex()
	if last == 0 {
		f.applied = 0
		return nil
	}
	it, err := f.log.Get(last)
	if err != nil {
		return err
	}
	f.applied = raftIndexFromHeader(it.Header)
	return nil
}

func (f *fsm) Apply(l *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l.Index <= f.applied {
		return applyResult{}
	}
	seqs, err := f.log.Append(context.Background(), []eventlog.AppendRecord{{Header: entryHeader(l.Term, l.Index), Payload: l.Data}})
	if err != nil {
		return applyResult{err: err}
	}
	f.applied = l.Index
	return applyResult{index: seqs[0]}
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.log.Read(f.log.FirstIndex(), 0)
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{items: items}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	items, err := readSnapshot(bufio.NewReader(rc))
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.log.Restore(context.Background(), items); err != nil {
		return err
	}
	return f.loadApplied()
}

type fsmSnapshot struct {
	items []eventlog.Item
}

// Persist writes uvarint(index) | uvarint(len) | record per entry.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	w := bufio.NewWriter(sink)
	var hdr []byte
	for _, it := range s.items {
		rec := eventlog.EncodeRecord(it.Header, it.Payload)
		hdr = binary.AppendUvarint(hdr[:0], it.Index)
		hdr = binary.AppendUvarint(hdr, uint64(len(rec)))
		if _, err := w.Write(hdr); err != nil {
			_ = sink.Cancel()
			return err
		}
		if _, err := w.Write(rec); err != nil {
			_ = sink.Cancel()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

func readSnapshot(r *bufio.Reader) ([]eventlog.Item, error) {
	var items []eventlog.Item
	for {
		idx, err := binary.ReadUvarint(r)
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		rec := make([]byte, n)
		if _, err := io.ReadFull(r, rec); err != nil {
			return nil, err
		}
		dec, err := eventlog.DecodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("snapshot entry %d: %w", idx, err)
		}
		items = append(items, eventlog.Item{Index: idx, Header: dec.Header, Payload: dec.Payload})
	}
}
