package pebblestore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetricsObserve(t *testing.T) {
	m := NewPromMetrics("test")
	db, err := Open(Options{DataDir: t.TempDir(), Fsync: FsyncModeAlways, Metrics: m})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Set([]byte("k"), []byte("value")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := db.Get([]byte("k")); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := testutil.ToFloat64(m.bytes.WithLabelValues("read")); got != 5 {
		t.Fatalf("read bytes: got %v want 5", got)
	}
	if got := testutil.ToFloat64(m.bytes.WithLabelValues("write")); got != 6 {
		t.Fatalf("write bytes: got %v want 6", got)
	}
	if n := testutil.CollectAndCount(m.commitDur); n != 1 {
		t.Fatalf("commit histogram count: %d", n)
	}
}
