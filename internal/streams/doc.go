// Package streams multiplexes independently typed logical streams onto one
// replicated log and splits them apart again on every reader.
//
// A Spec declares the streams once:
//
//	spec := streams.MustSpec(
//	    streams.Declare(1, "counters", streams.Use(1, streams.Int64())),
//	    streams.Declare(2, "names", streams.Use(1, streams.String())),
//	)
//
// On the leader a Multiplexer appends values through typed producers and
// returns their global log index. On every replica a Demultiplexer reads the
// committed log in order, decodes each envelope with the codec registered
// for its (stream, tag) pair and appends the value to that stream's inbox,
// where consumers wait for indices or iterate.
//
// Writes always use a stream's highest registered tag. Older tags stay
// decodable, so a new encoding can be rolled out without rewriting history.
// Any entry the Spec cannot decode halts the Demultiplexer.
package streams
