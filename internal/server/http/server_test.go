package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rzbill/logmux/internal/catalog"
	cfgpkg "github.com/rzbill/logmux/internal/config"
	"github.com/rzbill/logmux/internal/runtime"
	"github.com/rzbill/logmux/pkg/id"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	rt, err := runtime.Open(runtime.Options{Config: cfg, Spec: catalog.Default()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text", Output: []string{"null"}})
	return New(rt, logger)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if got := decode[map[string]string](t, w)["status"]; got != "ok" {
		t.Fatalf("health status = %q", got)
	}
}

func TestInsertWaitAndEntries(t *testing.T) {
	s := newTestServer(t)
	for i, v := range []string{`"hello"`, `"world"`} {
		w := do(t, s, http.MethodPost, "/v1/streams/notes/insert", v)
		if w.Code != http.StatusCreated {
			t.Fatalf("insert status: %d %s", w.Code, w.Body.String())
		}
		if got := decode[insertBody](t, w).Index; got != uint64(i+1) {
			t.Fatalf("insert index = %d, want %d", got, i+1)
		}
	}

	w := do(t, s, http.MethodGet, "/v1/streams/notes/wait?index=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("wait status: %d %s", w.Code, w.Body.String())
	}
	res := decode[waitBody](t, w)
	if !res.Found || string(res.Value) != `"world"` {
		t.Fatalf("wait = %+v", res)
	}

	w = do(t, s, http.MethodGet, "/v1/streams/counters/wait?index=2", "")
	if got := decode[waitBody](t, w); got.Found || got.Index != 2 {
		t.Fatalf("foreign wait = %+v", got)
	}

	w = do(t, s, http.MethodGet, "/v1/streams/notes/entries?from=2", "")
	body := decode[entriesBody](t, w)
	want := entriesBody{Stream: "notes", Entries: []entryBody{{Index: 2, Value: json.RawMessage(`"world"`)}}}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
}

func TestInsertProtoStream(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/streams/metadata/insert", `{"owner":"ops","replicas":3}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("insert status: %d %s", w.Code, w.Body.String())
	}
	w = do(t, s, http.MethodGet, "/v1/streams/metadata/wait?index=1", "")
	res := decode[waitBody](t, w)
	var got map[string]any
	if err := json.Unmarshal(res.Value, &got); err != nil {
		t.Fatalf("value %s: %v", res.Value, err)
	}
	if diff := cmp.Diff(map[string]any{"owner": "ops", "replicas": float64(3)}, got); diff != "" {
		t.Fatalf("metadata (-want +got):\n%s", diff)
	}
}

func TestInsertErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		target, body string
		want         int
	}{
		{"/v1/streams/nope/insert", `1`, http.StatusNotFound},
		{"/v1/streams/counters/insert", `"not a number"`, http.StatusBadRequest},
		{"/v1/streams/counters/insert", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(t, s, http.MethodPost, tt.target, tt.body); w.Code != tt.want {
			t.Errorf("POST %s %s = %d, want %d", tt.target, tt.body, w.Code, tt.want)
		}
	}
	if w := do(t, s, http.MethodGet, "/v1/streams/notes/wait?index=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("wait index 0 = %d", w.Code)
	}
}

func TestWaitTimeout(t *testing.T) {
	s := newTestServer(t)
	for _, target := range []string{
		"/v1/streams/notes/wait?index=5&timeoutMs=20",
		"/v1/streams/notes/wait?index=18446744073709551615&timeoutMs=1",
	} {
		w := do(t, s, http.MethodGet, target, "")
		if w.Code != http.StatusGatewayTimeout {
			t.Fatalf("%s: status = %d, want 504", target, w.Code)
		}
	}
	if n := s.rt.Demultiplexer().PendingWaits(); n != 0 {
		t.Fatalf("timed-out waits left registered: %d", n)
	}
}

func TestRaftJoinRequiresRaftMode(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]string{
		"not json":     `{`,
		"missing addr": `{"id":"n2"}`,
		"local mode":   `{"id":"n2","addr":"127.0.0.1:7091"}`,
	}
	for name, body := range cases {
		w := do(t, s, http.MethodPost, "/v1/raft/join", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400 (%s)", name, w.Code, w.Body.String())
		}
	}
}

func TestReleaseCompacts(t *testing.T) {
	s := newTestServer(t)
	for _, v := range []string{"1", "2", "3"} {
		do(t, s, http.MethodPost, "/v1/streams/counters/insert", v)
	}
	do(t, s, http.MethodGet, "/v1/streams/counters/wait?index=3", "")
	for _, d := range s.rt.Spec().Streams() {
		c, _ := s.rt.Demultiplexer().Stream(d.ID)
		if d.ID != catalog.Counters {
			c.Release(3)
		}
	}
	w := do(t, s, http.MethodPost, "/v1/streams/counters/release?through=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("release status: %d %s", w.Code, w.Body.String())
	}
	if got := decode[releaseResp](t, w); got.Compacted != 2 {
		t.Fatalf("release = %+v", got)
	}
	body := decode[entriesBody](t, do(t, s, http.MethodGet, "/v1/streams/counters/entries", ""))
	if len(body.Entries) != 1 || body.Entries[0].Index != 3 {
		t.Fatalf("entries after release = %+v", body.Entries)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/streams/events/insert", `{"kind":"deploy"}`)
	do(t, s, http.MethodGet, "/v1/streams/events/wait?index=1", "")

	st := decode[runtime.Status](t, do(t, s, http.MethodGet, "/v1/status", ""))
	if st.CommitIndex != 1 || st.AppliedIndex != 1 || !st.Leader {
		t.Fatalf("status = %+v", st)
	}

	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", w.Code)
	}
	for _, name := range []string{"logmux_streams_inserts_total", "logmux_streams_applied_index", "logmux_storage_bytes_total"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodOptions, "/v1/streams/notes/insert", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)
	a := do(t, s, http.MethodGet, "/v1/healthz", "").Header().Get(requestIDHeader)
	b := do(t, s, http.MethodGet, "/v1/healthz", "").Header().Get(requestIDHeader)
	ida, err := id.Parse(a)
	if err != nil {
		t.Fatalf("parse %q: %v", a, err)
	}
	idb, err := id.Parse(b)
	if err != nil {
		t.Fatalf("parse %q: %v", b, err)
	}
	if ida.Compare(idb) >= 0 {
		t.Fatalf("request ids not increasing: %s then %s", a, b)
	}

	want := id.NewGenerator().Next().String()
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set(requestIDHeader, want)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != want {
		t.Fatalf("caller id not echoed: got %q want %q", got, want)
	}
}

func TestSubscribeSSE(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)

	do(t, s, http.MethodPost, "/v1/streams/notes/insert", `"first"`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/streams/notes/subscribe", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	do(t, s, http.MethodPost, "/v1/streams/notes/insert", `"second"`)

	sc := bufio.NewScanner(resp.Body)
	var data []string
	for len(data) < 2 && sc.Scan() {
		if line, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			data = append(data, line)
		}
	}
	want := []string{`{"index":1,"value":"first"}`, `{"index":2,"value":"second"}`}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

type insertBody struct {
	Index uint64 `json:"index"`
}

type waitBody struct {
	Index uint64          `json:"index"`
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value"`
}

type entryBody struct {
	Index uint64          `json:"index"`
	Value json.RawMessage `json:"value"`
}

type entriesBody struct {
	Stream  string      `json:"stream"`
	Entries []entryBody `json:"entries"`
}

type releaseResp struct {
	Released  uint64 `json:"released"`
	Compacted uint64 `json:"compacted"`
}
