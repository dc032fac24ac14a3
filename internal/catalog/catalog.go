// Package catalog declares the streams a logmux server carries. Every node
// of a deployment, and every tool that reads its data dir, must use the same
// catalog.
package catalog

import (
	"encoding/json"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rzbill/logmux/internal/streams"
)

const (
	Events   streams.StreamID = 1
	Counters streams.StreamID = 2
	Notes    streams.StreamID = 3
	Blobs    streams.StreamID = 4
	Metadata streams.StreamID = 5
)

// Default returns the server catalog. Metadata was first written as protobuf
// JSON (tag 1) and is now written in the binary wire format (tag 2).
func Default() *streams.Spec {
	return streams.MustSpec(
		streams.Declare(Events, "events", streams.Use(1, streams.JSON[json.RawMessage]())),
		streams.Declare(Counters, "counters", streams.Use(1, streams.Int64())),
		streams.Declare(Notes, "notes", streams.Use(1, streams.String())),
		streams.Declare(Blobs, "blobs", streams.Use(1, streams.Bytes())),
		streams.Declare(Metadata, "metadata",
			streams.Use(1, streams.ProtoJSON[*structpb.Struct]()),
			streams.Use(2, streams.Proto[*structpb.Struct]()),
		),
	)
}

// Demo is the two-stream catalog used by the demo command.
func Demo() *streams.Spec {
	return streams.MustSpec(
		streams.Declare(1, "a", streams.Use(1, streams.Int64())),
		streams.Declare(2, "b", streams.Use(1, streams.String())),
	)
}

// ByName resolves a stream by its declared name.
func ByName(spec *streams.Spec, name string) (streams.StreamDescriptor, bool) {
	for _, d := range spec.Streams() {
		if d.Name == name {
			return d, true
		}
	}
	return streams.StreamDescriptor{}, false
}
