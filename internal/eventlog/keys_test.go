package eventlog

import (
	"bytes"
	"testing"
)

func TestKeyOrderingEntries(t *testing.T) {
	a := KeyLogEntry("mux", 10)
	b := KeyLogEntry("mux", 11)
	c := KeyLogEntry("mux", 256)
	if bytes.Compare(a, b) >= 0 || bytes.Compare(b, c) >= 0 {
		t.Fatalf("expected 10 < 11 < 256 in key order")
	}
	if got := indexFromKey(c); got != 256 {
		t.Fatalf("index from key: got %d want 256", got)
	}
}

func TestKeysDoNotOverlapAcrossLogs(t *testing.T) {
	low, high := entryBounds("a")
	other := KeyLogEntry("ab", 1)
	if bytes.Compare(other, low) >= 0 && bytes.Compare(other, high) < 0 {
		t.Fatalf("entry of log %q falls inside bounds of log %q", "ab", "a")
	}
	meta := KeyLogMeta("a")
	if bytes.Compare(meta, low) >= 0 && bytes.Compare(meta, high) < 0 {
		t.Fatalf("meta key must not fall inside entry bounds")
	}
}
