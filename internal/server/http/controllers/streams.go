package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/logmux/internal/catalog"
	"github.com/rzbill/logmux/internal/runtime"
	"github.com/rzbill/logmux/internal/streams"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

const (
	maxInsertBytes = 1 << 20
	defaultWait    = 30 * time.Second
)

// StreamsController exposes the declared streams: inserts go through the
// multiplexer, reads come from the demultiplexer's inboxes.
type StreamsController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

func NewStreamsController(rt *runtime.Runtime, logger logpkg.Logger) *StreamsController {
	return &StreamsController{rt: rt, logger: logger}
}

// RegisterRoutes sets up:
//
//	GET  /v1/streams
//	POST /v1/streams/{name}/insert
//	GET  /v1/streams/{name}/entries?from=&limit=
//	GET  /v1/streams/{name}/wait?index=&timeoutMs=
//	GET  /v1/streams/{name}/subscribe?from=
//	POST /v1/streams/{name}/release?through=
func (c *StreamsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/streams", c.handleList)
	mux.HandleFunc("POST /v1/streams/{name}/insert", c.handleInsert)
	mux.HandleFunc("GET /v1/streams/{name}/entries", c.handleEntries)
	mux.HandleFunc("GET /v1/streams/{name}/wait", c.handleWait)
	mux.HandleFunc("GET /v1/streams/{name}/subscribe", c.handleSubscribe)
	mux.HandleFunc("POST /v1/streams/{name}/release", c.handleRelease)
}

func (c *StreamsController) descriptor(w http.ResponseWriter, r *http.Request) (streams.StreamDescriptor, bool) {
	name := r.PathValue("name")
	d, ok := catalog.ByName(c.rt.Spec(), name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown stream "+strconv.Quote(name))
	}
	return d, ok
}

func (c *StreamsController) consumer(w http.ResponseWriter, r *http.Request) (*streams.ConsumerBase, bool) {
	d, ok := c.descriptor(w, r)
	if !ok {
		return nil, false
	}
	cons, err := c.rt.Demultiplexer().Stream(d.ID)
	if err != nil {
		writeStreamError(w, err)
		return nil, false
	}
	return cons, true
}

func (c *StreamsController) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"streams": c.rt.Status().Streams})
}

func (c *StreamsController) handleInsert(w http.ResponseWriter, r *http.Request) {
	d, ok := c.descriptor(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxInsertBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	v, err := catalog.ValueFromJSON(d.ValueType, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "decode value: "+err.Error())
		return
	}
	mux, err := c.rt.Multiplexer()
	if err != nil {
		writeStreamError(w, err)
		return
	}
	p, err := mux.Stream(d.ID)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	idx, err := p.Insert(r.Context(), v)
	if err != nil {
		c.logger.WithContext(r.Context()).Warn("insert failed", logpkg.Str("stream", d.Name), logpkg.Err(err))
		writeStreamError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(insertResp{Index: idx})
}

func (c *StreamsController) handleEntries(w http.ResponseWriter, r *http.Request) {
	cons, ok := c.consumer(w, r)
	if !ok {
		return
	}
	from, err := parseIndex(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	resp := entriesResp{Stream: cons.Name(), Entries: []entryJSON{}}
	for _, e := range cons.Snapshot() {
		if e.Index < from {
			continue
		}
		if limit > 0 && len(resp.Entries) >= limit {
			break
		}
		v, err := catalog.ValueJSON(e.Value)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Entries = append(resp.Entries, entryJSON{Index: e.Index, Value: v})
	}
	writeJSON(w, resp)
}

func (c *StreamsController) handleWait(w http.ResponseWriter, r *http.Request) {
	cons, ok := c.consumer(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	idx, err := parseIndex(q.Get("index"))
	if err != nil || idx == 0 {
		writeError(w, http.StatusBadRequest, "index must be a positive integer")
		return
	}
	timeout := defaultWait
	if ms := parseLimit(q.Get("timeoutMs")); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	fut := cons.WaitFor(idx)
	defer fut.Cancel()
	res, err := fut.Wait(ctx)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	resp := waitResp{Index: res.Index, Found: res.Found}
	if res.Found {
		if resp.Value, err = catalog.ValueJSON(res.Value); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, resp)
}

func (c *StreamsController) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	cons, ok := c.consumer(w, r)
	if !ok {
		return
	}
	from, err := parseIndex(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	sink := newSSESink(w)
	for e, err := range cons.EntriesFrom(from).All(r.Context()) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				_ = sink.End(err.Error())
			}
			return
		}
		if err := sink.Send(e); err != nil {
			c.logger.WithContext(r.Context()).Debug("subscriber went away", logpkg.Str("stream", cons.Name()), logpkg.Err(err))
			return
		}
	}
	_ = sink.End("closed")
}

// handleRelease drops the stream's entries through the given index and
// compacts the log prefix every stream has released.
func (c *StreamsController) handleRelease(w http.ResponseWriter, r *http.Request) {
	cons, ok := c.consumer(w, r)
	if !ok {
		return
	}
	through, err := parseIndex(r.URL.Query().Get("through"))
	if err != nil || through == 0 {
		writeError(w, http.StatusBadRequest, "through must be a positive integer")
		return
	}
	cons.Release(through)
	compacted, err := c.rt.Compact(r.Context())
	if err != nil {
		writeStreamError(w, err)
		return
	}
	writeJSON(w, releaseResp{Released: through, Compacted: compacted})
}
