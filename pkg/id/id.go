package id

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"
)

// ID is a sortable 16-byte identifier: [8 bytes unix ms][8 bytes sequence],
// both big-endian.
type ID [16]byte

// Zero is the unset ID.
var Zero ID

func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Time returns the millisecond timestamp embedded in i.
func (i ID) Time() time.Time {
	return time.UnixMilli(int64(binary.BigEndian.Uint64(i[:8])))
}

// Seq returns the per-millisecond sequence embedded in i.
func (i ID) Seq() uint64 { return binary.BigEndian.Uint64(i[8:]) }

func (i ID) Compare(other ID) int { return bytes.Compare(i[:], other[:]) }

// Parse decodes the 32 character hex form produced by String.
func Parse(s string) (ID, error) {
	var out ID
	if len(s) != hex.EncodedLen(len(out)) {
		return Zero, fmt.Errorf("id: want %d hex characters, got %d", hex.EncodedLen(len(out)), len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return Zero, fmt.Errorf("id: %w", err)
	}
	return out, nil
}

// Generator hands out strictly increasing IDs. The zero value is ready to use.
type Generator struct {
	// Clock returns unix milliseconds; nil means the wall clock.
	Clock func() int64

	mu     sync.Mutex
	lastMs int64
	seq    uint64
}

func NewGenerator() *Generator { return &Generator{} }

func (g *Generator) now() int64 {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now().UnixMilli()
}

// Next returns an ID greater than every ID previously returned by g. A clock
// that moves backwards is pinned to the last millisecond seen; an exhausted
// sequence waits for the next millisecond.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := max(g.now(), g.lastMs)
	switch {
	case ms > g.lastMs:
		g.seq = 0
	case g.seq < math.MaxUint64:
		g.seq++
	default:
		for ms <= g.lastMs {
			time.Sleep(time.Millisecond / 8)
			ms = g.now()
		}
		g.seq = 0
	}
	g.lastMs = ms

	var out ID
	binary.BigEndian.PutUint64(out[:8], uint64(ms))
	binary.BigEndian.PutUint64(out[8:], g.seq)
	return out
}
