package id

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNextIsMonotonicWithinMillisecond(t *testing.T) {
	g := &Generator{Clock: func() int64 { return 1000 }}
	a, b := g.Next(), g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected %s < %s", a, b)
	}
	if b.Seq() != 1 {
		t.Fatalf("seq: got %d want 1", b.Seq())
	}
	if got := b.Time().UnixMilli(); got != 1000 {
		t.Fatalf("time: got %d want 1000", got)
	}
}

func TestNextSurvivesClockRegression(t *testing.T) {
	now := int64(1000)
	g := &Generator{Clock: func() int64 { return now }}
	a := g.Next()
	now = 900
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected %s < %s after clock regression", a, b)
	}
	if b.Time().UnixMilli() != 1000 {
		t.Fatalf("regressed id should keep last millisecond, got %d", b.Time().UnixMilli())
	}
}

func TestNextWaitsWhenSequenceExhausted(t *testing.T) {
	var now atomic.Int64
	now.Store(2000)
	g := &Generator{Clock: now.Load}
	g.lastMs = 2000
	g.seq = ^uint64(0)

	done := make(chan ID, 1)
	go func() { done <- g.Next() }()
	time.AfterFunc(10*time.Millisecond, func() { now.Store(2001) })

	select {
	case got := <-done:
		if got.Time().UnixMilli() != 2001 || got.Seq() != 0 {
			t.Fatalf("got ms=%d seq=%d, want ms=2001 seq=0", got.Time().UnixMilli(), got.Seq())
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for next millisecond")
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	want := g.Next()
	got, err := Parse(want.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
	if _, err := Parse("abc"); err == nil {
		t.Fatalf("expected length error")
	}
	if _, err := Parse("zz000000000000000000000000000000"); err == nil {
		t.Fatalf("expected hex error")
	}
}
