package eventlog

import (
	"context"
	"testing"
)

func TestTrimThrough(t *testing.T) {
	l := seedLog(t, 10)
	ctx := context.Background()

	n, err := l.TrimThrough(ctx, 4, 3, 0)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 4 {
		t.Fatalf("want 4 deleted, got %d", n)
	}
	if l.FirstIndex() != 5 {
		t.Fatalf("first index: got %d want 5", l.FirstIndex())
	}
	items, err := l.Read(0, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 6 || items[0].Index != 5 {
		t.Fatalf("unexpected remaining items: %d first=%d", len(items), items[0].Index)
	}

	// Trimming below the first retained index is a no-op.
	if n, _ := l.TrimThrough(ctx, 3, 0, 0); n != 0 {
		t.Fatalf("expected no-op trim, deleted %d", n)
	}
	// Trimming past the end clamps to the last index.
	if n, _ := l.TrimThrough(ctx, 100, 0, 0); n != 6 {
		t.Fatalf("expected 6 deleted, got %d", n)
	}
	if l.FirstIndex() != 11 || l.LastIndex() != 10 {
		t.Fatalf("empty bounds: first=%d last=%d", l.FirstIndex(), l.LastIndex())
	}
}

func TestRestoreReplacesContent(t *testing.T) {
	l := seedLog(t, 3)
	ctx := context.Background()
	snap := []Item{
		{Index: 7, Header: TermHeader(2), Payload: []byte("g")},
		{Index: 8, Header: TermHeader(2), Payload: []byte("h")},
	}
	if err := l.Restore(ctx, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if l.FirstIndex() != 7 || l.LastIndex() != 8 {
		t.Fatalf("bounds: first=%d last=%d", l.FirstIndex(), l.LastIndex())
	}
	items, err := l.Read(0, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 || string(items[1].Payload) != "h" {
		t.Fatalf("unexpected items after restore: %+v", items)
	}
	if err := l.Restore(ctx, []Item{{Index: 1}, {Index: 3}}); err == nil {
		t.Fatalf("expected error for non-contiguous snapshot")
	}
}

func TestApproxBytes(t *testing.T) {
	l := seedLog(t, 4)
	n, err := l.ApproxBytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if n <= 0 {
		t.Fatalf("expected positive size, got %d", n)
	}
}
