package client

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordedRequest struct {
	method, uri, body string
}

func startHTTPStub(t *testing.T, status int, resp string) (func() string, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{r.Method, r.URL.RequestURI(), string(b)})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(ts.Close)
	return func() string { return ts.URL }, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func runStreamCmd(t *testing.T, baseURL BaseURLFunc, args ...string) (string, error) {
	t.Helper()
	cmd := NewStreamCommand(baseURL)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestStreamCommandsBuildRequests(t *testing.T) {
	base, reqs := startHTTPStub(t, http.StatusOK, `{"ok":true}`)
	runs := [][]string{
		{"insert", "--name", "notes", "--value", `"hi"`},
		{"entries", "--name", "notes", "--from", "3", "--limit", "2"},
		{"wait", "--name", "counters", "--index", "7", "--timeout-ms", "500"},
		{"list"},
	}
	for _, args := range runs {
		out, err := runStreamCmd(t, base, args...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		if !strings.Contains(out, `"ok": true`) {
			t.Fatalf("%v: output %q", args, out)
		}
	}
	want := []recordedRequest{
		{http.MethodPost, "/v1/streams/notes/insert", `"hi"`},
		{http.MethodGet, "/v1/streams/notes/entries?from=3&limit=2", ""},
		{http.MethodGet, "/v1/streams/counters/wait?index=7&timeoutMs=500", ""},
		{http.MethodGet, "/v1/streams", ""},
	}
	got := reqs()
	if len(got) != len(want) {
		t.Fatalf("requests = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStreamInsertRejectsInvalidJSON(t *testing.T) {
	base, reqs := startHTTPStub(t, http.StatusOK, `{}`)
	if _, err := runStreamCmd(t, base, "insert", "--name", "notes", "--value", "hi"); err == nil {
		t.Fatal("expected invalid value error")
	}
	if n := len(reqs()); n != 0 {
		t.Fatalf("sent %d requests", n)
	}
}

func TestStreamCommandSurfacesServerError(t *testing.T) {
	base, _ := startHTTPStub(t, http.StatusServiceUnavailable, `{"error":"streams: not leader"}`)
	_, err := runStreamCmd(t, base, "insert", "--name", "notes", "--value", `"x"`)
	if err == nil || !strings.Contains(err.Error(), "not leader") {
		t.Fatalf("err = %v", err)
	}
}
