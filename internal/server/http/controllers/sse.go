package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rzbill/logmux/internal/catalog"
	"github.com/rzbill/logmux/internal/streams"
)

// sseSink writes stream entries as Server-Sent Events.
type sseSink struct {
	w http.ResponseWriter
}

func newSSESink(w http.ResponseWriter) sseSink {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return sseSink{w: w}
}

// Send writes one entry as an SSE data event with the log index as its id.
func (s sseSink) Send(e streams.Entry[any]) error {
	v, err := catalog.ValueJSON(e.Value)
	if err != nil {
		return err
	}
	b, _ := json.Marshal(entryJSON{Index: e.Index, Value: v})
	return s.write("id: "+strconv.FormatUint(e.Index, 10)+"\ndata: ", b, []byte("\n\n"))
}

// End writes a terminal event naming why the stream stopped.
func (s sseSink) End(reason string) error {
	b, _ := json.Marshal(map[string]string{"reason": reason})
	return s.write("event: end\ndata: ", b, []byte("\n\n"))
}

func (s sseSink) write(prefix string, parts ...[]byte) error {
	if _, err := s.w.Write([]byte(prefix)); err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := s.w.Write(p); err != nil {
			return err
		}
	}
	s.Flush()
	return nil
}

func (s sseSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
