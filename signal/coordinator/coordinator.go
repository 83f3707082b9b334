// Package coordinator serializes every signaling event of the server on a
// single goroutine.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"roomcast/database"
	"roomcast/metric"
	"roomcast/registry"
	"roomcast/types/client/request"
	"roomcast/types/client/response"
	"roomcast/types/message"
)

// ErrStopped is returned when the hub loop is not running anymore.
var ErrStopped = errors.New("hub stopped")

// Hub owns the registry and the table of live connections. Every registry
// operation and every disconnect is handled to completion before the next.
type Hub struct {
	registry *registry.Registry
	metric   *metric.Metrics
	logger   *slog.Logger

	register   chan *Session
	unregister chan *Session
	requests   chan message.Request
	done       chan struct{}

	// sessions and evicted are only touched by Run.
	sessions map[string]*Session
	evicted  []string

	rooms atomic.Int64
}

// New creates a new instance of Hub backed by db.
func New(db database.Database, m *metric.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		metric:     m,
		logger:     logger,
		register:   make(chan *Session),
		unregister: make(chan *Session),
		requests:   make(chan message.Request, 64),
		done:       make(chan struct{}),
		sessions:   make(map[string]*Session),
	}
	h.registry = registry.New(db, h, logger)
	return h
}

// Run processes events until ctx is done. It must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id := range h.sessions {
				h.disconnect(id)
			}
			return
		case s := <-h.register:
			h.sessions[s.ID] = s
			h.Notify(s.ID, response.Welcome{ConnectionID: s.ID})
			h.logger.Debug("connection registered", "connection", s.ID)
		case s := <-h.unregister:
			if current, ok := h.sessions[s.ID]; ok && current == s {
				h.disconnect(s.ID)
			}
		case req := <-h.requests:
			if _, ok := h.sessions[req.ConnectionID]; ok {
				h.handle(req)
			}
		}
		h.flushEvictions()
		h.updateStats()
	}
}

// Register adds a connection. The session receives a welcome message first.
func (h *Hub) Register(s *Session) error {
	select {
	case h.register <- s:
		return nil
	case <-h.done:
		return ErrStopped
	}
}

// Unregister removes a connection and makes it leave its room.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Submit queues a request of a registered connection.
func (h *Hub) Submit(req message.Request) error {
	select {
	case h.requests <- req:
		return nil
	case <-h.done:
		return ErrStopped
	}
}

// RoomCount returns the number of live rooms. It is safe for concurrent use.
func (h *Hub) RoomCount() int {
	return int(h.rooms.Load())
}

// Notify implements registry.Notifier. It is only called from Run.
func (h *Hub) Notify(connectionID string, msg response.Message) {
	s, ok := h.sessions[connectionID]
	if !ok {
		return
	}
	data, err := response.Encode(msg)
	if err != nil {
		h.logger.Error("failed to encode message", "type", msg.Type(), "error", err)
		return
	}
	if !s.enqueue(data) {
		h.logger.Warn("send queue full, evicting connection", "connection", connectionID)
		h.evicted = append(h.evicted, connectionID)
	}
}

func (h *Hub) handle(req message.Request) {
	from := req.ConnectionID
	ack := response.Ack{RequestID: req.RequestID}

	var err error
	switch m := req.Message.(type) {
	case nil:
		err = fmt.Errorf("%w: %w", registry.ErrInvalidArgument, req.Err)
	case request.CreateRoom:
		var res registry.JoinResult
		res, err = h.registry.CreateRoom(m.RoomID, m.Name, m.Password, from)
		ack.RoomID, ack.IsAdmin, ack.Participants = res.RoomID, res.IsAdmin, res.Participants
	case request.JoinRoom:
		var res registry.JoinResult
		res, err = h.registry.JoinRoom(m.RoomID, m.Password, from)
		ack.RoomID, ack.IsAdmin, ack.Participants = res.RoomID, res.IsAdmin, res.Participants
	case request.UpdateStreamStatus:
		err = h.registry.UpdateStreamStatus(m.RoomID, from, m.HasVideo, m.HasAudio)
	case request.UpdateStreamSettings:
		err = h.registry.UpdateStreamSettings(from, m)
	case request.Relay:
		ack.RoomID, err = h.registry.Relay(from, m)
		if err == nil {
			h.metric.IncrementRelayedSignals(m.Kind)
		}
	case request.KickUser:
		err = h.registry.Kick(m.RoomID, from, m.TargetID)
	case request.GetRoomInfo:
		var info response.RoomInfo
		info, err = h.registry.RoomInfo(m.RoomID, from)
		if err == nil {
			ack.RoomID, ack.IsAdmin, ack.Room = info.ID, info.IsAdmin, &info
		}
	case request.LeaveRoom:
		err = h.registry.Leave(m.RoomID, from)
	default:
		err = fmt.Errorf("%T: %w", m, request.ErrUnknownType)
	}

	if err != nil {
		reason := registry.Reason(err)
		h.metric.IncrementRegistryErrors(reason)
		h.logger.Debug("request rejected", "connection", from, "type", req.Type(), "error", err)
		ack.Error = reason
	}
	ack.Success = err == nil
	if req.RequestID != 0 {
		h.Notify(from, ack)
	}
}

func (h *Hub) disconnect(id string) {
	s, ok := h.sessions[id]
	if !ok {
		return
	}
	delete(h.sessions, id)
	s.close()
	h.registry.Disconnect(id)
	h.logger.Debug("connection unregistered", "connection", id)
}

// flushEvictions disconnects slow connections. Disconnecting may notify and
// evict further connections, so it loops until none are left.
func (h *Hub) flushEvictions() {
	for len(h.evicted) > 0 {
		id := h.evicted[0]
		h.evicted = h.evicted[1:]
		h.disconnect(id)
	}
}

func (h *Hub) updateStats() {
	rooms, participants := h.registry.Stats()
	h.rooms.Store(int64(rooms))
	h.metric.SetRoomStats(rooms, participants)
}
