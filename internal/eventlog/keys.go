package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - log/{name}/m             (last appended index)
// - log/{name}/f             (first retained index)
// - log/{name}/e/{index_be8} (entries)

var (
	logPrefix   = []byte("log/")
	metaSuffix  = []byte("/m")
	firstSuffix = []byte("/f")
	entrySeg    = []byte("/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func keyLogBase(name string, extra int) []byte {
	k := make([]byte, 0, len(logPrefix)+len(name)+extra)
	k = append(k, logPrefix...)
	k = append(k, name...)
	return k
}

// KeyLogMeta builds the key holding the last appended index.
func KeyLogMeta(name string) []byte {
	return append(keyLogBase(name, len(metaSuffix)), metaSuffix...)
}

// KeyLogFirst builds the key holding the first retained index.
func KeyLogFirst(name string) []byte {
	return append(keyLogBase(name, len(firstSuffix)), firstSuffix...)
}

// KeyLogEntry builds the entry key with a big-endian index for proper ordering.
func KeyLogEntry(name string, index uint64) []byte {
	k := keyLogBase(name, len(entrySeg)+8)
	k = append(k, entrySeg...)
	return appendBE8(k, index)
}

// entryBounds returns iterator bounds covering every entry of the log.
func entryBounds(name string) (low, high []byte) {
	low = KeyLogEntry(name, 0)
	high = append(KeyLogEntry(name, ^uint64(0)), 0x00)
	return low, high
}

// indexFromKey extracts the trailing big-endian index of an entry key.
func indexFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(k)-8:])
}
