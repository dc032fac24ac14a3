package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rzbill/logmux/internal/streams"
)

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps stream errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, streams.ErrMisuse):
		return http.StatusBadRequest
	case errors.Is(err, streams.ErrNotLeader):
		return http.StatusServiceUnavailable
	case errors.Is(err, streams.ErrAborted):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeStreamError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// parseLimit parses a limit string. Returns 0 for empty or invalid values.
func parseLimit(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return 0
}

// parseIndex parses a log index query value; empty means 0.
func parseIndex(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
