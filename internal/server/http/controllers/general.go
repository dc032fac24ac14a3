package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/logmux/internal/runtime"
)

// GeneralController serves node-level endpoints: health, status and metrics.
type GeneralController struct {
	rt *runtime.Runtime
}

func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers /v1/healthz, /v1/status, /v1/raft/join and
// /metrics.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/healthz", c.handleHealth)
	mux.HandleFunc("GET /v1/status", c.handleStatus)
	mux.HandleFunc("POST /v1/raft/join", c.handleJoin)
	mux.Handle("GET /metrics", promhttp.HandlerFor(c.rt.Registry(), promhttp.HandlerOpts{}))
}

// handleHealth returns 200 with {"status":"ok"} when healthy, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "not_serving", "error": err.Error()})
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, c.rt.Status())
}

// handleJoin adds the replica in the body {"id","addr"} as a raft voter.
func (c *GeneralController) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.ID == "" || req.Addr == "" {
		writeError(w, http.StatusBadRequest, "id and addr are required")
		return
	}
	if err := c.rt.Join(req.ID, req.Addr); err != nil {
		if errors.Is(err, runtime.ErrNotRaft) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeStreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
