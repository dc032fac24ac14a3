package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/rzbill/logmux/internal/catalog"
	cfgpkg "github.com/rzbill/logmux/internal/config"
	"github.com/rzbill/logmux/internal/runtime"
	"github.com/rzbill/logmux/internal/streams"
)

// seedDataDir writes counters 5 and 500, a note and an undeclared stream
// entry, then closes the node.
func seedDataDir(t *testing.T) string {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	rt, err := runtime.Open(runtime.Options{Config: cfg, Spec: catalog.Default()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	mux, _ := rt.Multiplexer()
	counters, _ := streams.ProducerFor[int64](mux, catalog.Counters)
	notes, _ := streams.ProducerFor[string](mux, catalog.Notes)
	for _, insert := range []func() error{
		func() error { _, err := counters.Insert(ctx, 5); return err },
		func() error { _, err := notes.Insert(ctx, "deploy web"); return err },
		func() error { _, err := counters.Insert(ctx, 500); return err },
		func() error {
			_, err := rt.Local().Append(ctx, streams.EncodeEnvelope(streams.Envelope{Stream: 99, Tag: 1, Payload: []byte("??")}))
			return err
		},
	} {
		if err := insert(); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return cfg.DataDir
}

func readRecords(t *testing.T, b []byte) []record {
	t.Helper()
	var out []record
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var r record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode %s: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	return out
}

func TestDumpAll(t *testing.T) {
	dir := seedDataDir(t)
	var buf bytes.Buffer
	n, err := runDump(context.Background(), &buf, catalog.Default(), dumpOptions{DataDir: dir, LogName: "mux"})
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if n != 4 {
		t.Fatalf("dumped %d entries, want 4", n)
	}
	want := []record{
		{Index: 1, Term: 1, Stream: 2, Name: "counters", Tag: 1, Size: 1, Value: json.RawMessage(`5`)},
		{Index: 2, Term: 1, Stream: 3, Name: "notes", Tag: 1, Size: 10, Value: json.RawMessage(`"deploy web"`)},
		{Index: 3, Term: 1, Stream: 2, Name: "counters", Tag: 1, Size: 2, Value: json.RawMessage(`500`)},
		{Index: 4, Term: 1, Stream: 99, Tag: 1, Size: 2, Payload: map[string]any{"payload_text": "??"}, Error: "stream or tag not declared"},
	}
	if diff := cmp.Diff(want, readRecords(t, buf.Bytes()), cmpopts.IgnoreUnexported(record{})); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
}

func TestDumpFilterAndLimit(t *testing.T) {
	dir := seedDataDir(t)
	tests := []struct {
		filter string
		limit  int
		want   []uint64
	}{
		{`name == "counters" && json > 100.0`, 0, []uint64{3}},
		{`text.contains("deploy")`, 0, []uint64{2}},
		{`stream == 2`, 1, []uint64{1}},
		{`index >= 2`, 0, []uint64{2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			f, err := newCELFilter(tt.filter)
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			var buf bytes.Buffer
			if _, err := runDump(context.Background(), &buf, catalog.Default(), dumpOptions{DataDir: dir, LogName: "mux", Limit: tt.limit, Filter: f}); err != nil {
				t.Fatalf("dump: %v", err)
			}
			var got []uint64
			for _, r := range readRecords(t, buf.Bytes()) {
				got = append(got, r.Index)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("indices (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInvalidFilter(t *testing.T) {
	if _, err := newCELFilter(`index ==`); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := newCELFilter(`nope > 1`); err == nil {
		t.Fatal("expected undeclared reference error")
	}
}
