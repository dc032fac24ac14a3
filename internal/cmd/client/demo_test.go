package client

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRunDemo(t *testing.T) {
	report, err := runDemo(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	if diff := cmp.Diff([]uint64{1, 2, 3, 4, 5}, report.Inserted); diff != "" {
		t.Fatalf("inserted (-want +got):\n%s", diff)
	}
	want := map[string][]demoEntry{
		"a": {{1, int64(12)}, {3, int64(13)}, {5, int64(14)}},
		"b": {{2, "foo"}, {4, "bar"}},
	}
	if diff := cmp.Diff(want, report.Streams); diff != "" {
		t.Fatalf("inboxes (-want +got):\n%s", diff)
	}
	w := report.Wait
	if w.Index != 5 || !w.Found || w.Value != 14 || w.Applied < 5 {
		t.Fatalf("wait = %+v", w)
	}
}

func TestDemoCommandPrintsJSON(t *testing.T) {
	cmd := NewDemoCommand(nil)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var out struct {
		Streams map[string][]json.RawMessage `json:"streams"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", buf.String(), err)
	}
	if len(out.Streams["a"]) != 3 || len(out.Streams["b"]) != 2 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
