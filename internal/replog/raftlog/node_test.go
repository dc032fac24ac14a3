package raftlog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/rzbill/logmux/internal/eventlog"
	"github.com/rzbill/logmux/internal/replog"
	pebblestore "github.com/rzbill/logmux/internal/storage/pebble"
)

func openDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return db
}

func testConfig(id string) Config {
	_, trans := raft.NewInmemTransport(raft.ServerAddress(id))
	return Config{
		ID:               id,
		Bootstrap:        true,
		Transport:        trans,
		HeartbeatTimeout: 50 * time.Millisecond,
		ElectionTimeout:  50 * time.Millisecond,
		ApplyTimeout:     2 * time.Second,
	}
}

func waitLeader(t *testing.T, n *Node) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !n.IsLeader() {
		if time.Now().After(deadline) {
			t.Fatalf("node never became leader")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSingleNodeAppend(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	n, err := Open(db, testConfig("n1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	waitLeader(t, n)

	ctx := context.Background()
	for i, want := range []replog.Index{1, 2, 3} {
		got, err := n.Append(ctx, []byte{byte('a' + i)})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if got != want {
			t.Fatalf("index: got %d want %d", got, want)
		}
	}
	entries, err := n.Read(1, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 || string(entries[2].Data) != "c" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Term == 0 {
		t.Fatalf("expected raft term on entries")
	}
}

func TestAppendRejectedAfterShutdown(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	n, err := Open(db, testConfig("n1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitLeader(t, n)
	if _, err := n.Append(context.Background(), []byte("x")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := n.Append(context.Background(), []byte("y")); !errors.Is(err, replog.ErrNotLeader) {
		t.Fatalf("want ErrNotLeader after shutdown, got %v", err)
	}
	if _, err := n.WaitForCommit(context.Background(), 1); !errors.Is(err, replog.ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

func TestRestartDoesNotReapply(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	n, err := Open(db, testConfig("n1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitLeader(t, n)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := n.Append(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = n.Close()
	_ = db.Close()

	db2 := openDB(t, dir)
	t.Cleanup(func() { _ = db2.Close() })
	n2, err := Open(db2, testConfig("n1"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = n2.Close() })
	waitLeader(t, n2)
	idx, err := n2.Append(ctx, []byte("next"))
	if err != nil {
		t.Fatalf("append after restart: %v", err)
	}
	if idx != 4 {
		t.Fatalf("index after restart: got %d want 4", idx)
	}
	if n2.CommitIndex() != 4 {
		t.Fatalf("commit index: %d", n2.CommitIndex())
	}
}

func TestReleaseKeepsNewestEntry(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	n, err := Open(db, testConfig("n1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	waitLeader(t, n)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := n.Append(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := n.Snapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := n.Release(ctx, 100); err != nil {
		t.Fatalf("release: %v", err)
	}
	if n.FirstIndex() != 4 {
		t.Fatalf("release must keep the newest entry, first=%d", n.FirstIndex())
	}
}

func TestStoreLogRoundTrip(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	s := NewStore(db, "raft/test")

	if idx, _ := s.LastIndex(); idx != 0 {
		t.Fatalf("empty store last index: %d", idx)
	}
	logs := []*raft.Log{
		{Index: 1, Term: 1, Type: raft.LogCommand, Data: []byte("a")},
		{Index: 2, Term: 1, Type: raft.LogCommand, Data: []byte("b")},
		{Index: 3, Term: 2, Type: raft.LogNoop},
	}
	if err := s.StoreLogs(logs); err != nil {
		t.Fatalf("store: %v", err)
	}
	first, _ := s.FirstIndex()
	last, _ := s.LastIndex()
	if first != 1 || last != 3 {
		t.Fatalf("bounds: first=%d last=%d", first, last)
	}
	var out raft.Log
	if err := s.GetLog(2, &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Term != 1 || string(out.Data) != "b" || out.Type != raft.LogCommand {
		t.Fatalf("unexpected log: %+v", out)
	}
	if err := s.DeleteRange(1, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.GetLog(1, &out); !errors.Is(err, raft.ErrLogNotFound) {
		t.Fatalf("want ErrLogNotFound, got %v", err)
	}
	if first, _ := s.FirstIndex(); first != 3 {
		t.Fatalf("first after delete: %d", first)
	}

	if v, err := s.GetUint64([]byte("CurrentTerm")); err != nil || v != 0 {
		t.Fatalf("missing uint64: v=%d err=%v", v, err)
	}
	if _, err := s.Get([]byte("missing")); err == nil || err.Error() != "not found" {
		t.Fatalf("missing key error: %v", err)
	}
	if err := s.SetUint64([]byte("CurrentTerm"), 7); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := s.GetUint64([]byte("CurrentTerm")); v != 7 {
		t.Fatalf("uint64: got %d", v)
	}
}

func TestFSMRestoreFromSnapshot(t *testing.T) {
	src := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = src.Close() })
	n, err := Open(src, testConfig("n1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	waitLeader(t, n)
	for i := 0; i < 3; i++ {
		if _, err := n.Append(context.Background(), []byte{byte(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	snap, err := (&fsm{log: n.log}).Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	sink := &memSink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("persist: %v", err)
	}

	dst := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = dst.Close() })
	elog, err := eventlog.OpenLog(dst, "mux")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	f, err := newFSM(elog)
	if err != nil {
		t.Fatalf("fsm: %v", err)
	}
	if err := f.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if elog.LastIndex() != 3 {
		t.Fatalf("restored last index: %d", elog.LastIndex())
	}
	if f.applied == 0 {
		t.Fatalf("applied raft index not recovered from snapshot")
	}
	// A command already covered by the snapshot is skipped.
	if res := f.Apply(&raft.Log{Index: f.applied, Data: []byte("dup")}).(applyResult); res.index != 0 {
		t.Fatalf("duplicate apply appended at %d", res.index)
	}
}

type memSink struct {
	bytes.Buffer
}

func (s *memSink) ID() string    { return "mem" }
func (s *memSink) Cancel() error { return nil }
func (s *memSink) Close() error  { return nil }
