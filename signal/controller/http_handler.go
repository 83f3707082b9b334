package controller

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// RoomCounter reports the number of live rooms.
type RoomCounter interface {
	RoomCount() int
}

// Health answers liveness probes.
type Health struct {
	rooms RoomCounter
}

// NewHealth creates a new Health handler.
func NewHealth(rc RoomCounter) *Health {
	return &Health{rooms: rc}
}

// ServeHTTP writes the health status as JSON.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"rooms":  h.rooms.RoomCount(),
	}); err != nil {
		slog.Debug("failed to write health response", "error", err)
	}
}
