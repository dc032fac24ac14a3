// Package eventlog implements the local, contiguously indexed entry store that
// backs every replicated log implementation in logmux.
//
// # Overview
//
// Each log is identified by name and persisted in Pebble. Keys are
// lexicographically ordered for efficient range scans:
//   - log/{name}/m             (last appended index)
//   - log/{name}/f             (first retained index)
//   - log/{name}/e/{index_be8} (entries)
//
// Records are stored as: uvarint headerLen | header | payload | crc32c(header|payload).
// Replicated logs put the 8-byte term in the header (see TermHeader).
//
// API surface (internal)
//
//	l, _ := OpenLog(db, "mux")
//	idx, _ := l.Append(ctx, []AppendRecord{{Header: TermHeader(1), Payload: p}})
//
//	// Forward reads from an index, bounded by limit
//	items, _ := l.Read(idx[0], 100)
//
//	// Blocking wait/notify
//	last, err := l.WaitForAppendContext(ctx, idx[0])
//
//	// Compaction below a released index
//	_, _ = l.TrimThrough(ctx, idx[0], 1024, 0)
//
// Indices never repeat and never skip: Append assigns last+1, AppendAt
// rejects anything but last+1 with ErrIndexGap.
package eventlog
