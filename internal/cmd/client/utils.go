package client

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rzbill/logmux/internal/catalog"
	"github.com/rzbill/logmux/internal/replog"
	grpcserver "github.com/rzbill/logmux/internal/server/grpc"
	"github.com/rzbill/logmux/internal/streams"
)

// grpcAddrFromEnv returns the gRPC server address from LOGMUX_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("LOGMUX_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:7070"
}

// withReplicationClient provides a replication client and ensures the connection is closed.
func withReplicationClient(fn func(*grpcserver.Client) error) error {
	conn, err := grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(grpcserver.NewClient(conn))
}

// decodedPayload returns a map with one of payload_json, payload_text, or payload_b64.
func decodedPayload(payload []byte) map[string]any {
	out := map[string]any{}
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}

// record is one log entry rendered for output.
type record struct {
	Index   uint64          `json:"index"`
	Term    uint64          `json:"term"`
	Stream  uint32          `json:"stream"`
	Name    string          `json:"name,omitempty"`
	Tag     uint32          `json:"tag"`
	Size    int             `json:"size"`
	Value   json.RawMessage `json:"value,omitempty"`
	Payload map[string]any  `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`

	raw []byte
}

// renderEntry decodes e with spec. Entries the spec cannot decode keep
// their raw payload and carry the reason in Error.
func renderEntry(spec *streams.Spec, e replog.Entry) record {
	r := record{Index: e.Index, Term: e.Term, Size: len(e.Data)}
	env, err := streams.DecodeEnvelope(e.Data)
	if err != nil {
		r.Error = err.Error()
		r.raw = e.Data
		r.Payload = decodedPayload(e.Data)
		return r
	}
	r.Stream, r.Tag, r.Size, r.raw = uint32(env.Stream), uint32(env.Tag), len(env.Payload), env.Payload
	if d, ok := spec.Lookup(env.Stream); ok {
		r.Name = d.Name
	}
	td, ok := spec.LookupTag(env.Stream, env.Tag)
	if !ok {
		r.Error = "stream or tag not declared"
		r.Payload = decodedPayload(env.Payload)
		return r
	}
	v, err := td.Decode(env.Payload)
	if err == nil {
		r.Value, err = catalog.ValueJSON(v)
	}
	if err != nil {
		r.Error = err.Error()
		r.Payload = decodedPayload(env.Payload)
	}
	return r
}
