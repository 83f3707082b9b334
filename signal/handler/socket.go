// Package handler upgrades HTTP requests to signaling connections.
package handler

import (
	"log/slog"
	"net/http"

	"roomcast/pkg/socket"
	"roomcast/signal/controller"
)

// Handler upgrades the request and hands the websocket to the controller.
type Handler struct {
	controller controller.Processor
}

// New creates a new Handler.
func New(c controller.Processor) *Handler {
	return &Handler{
		controller: c,
	}
}

// ServeHTTP handles the HTTP request and upgrades it to websocket connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := socket.New(w, r)
	if err != nil {
		slog.Debug("failed to upgrade connection", "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("error occurs in closing connection", "error", err)
		}
	}()
	if err := h.controller.Process(r.Context(), conn); err != nil {
		slog.Warn("error occurs in connection", "error", err)
	}
}
