// Package coordinator serializes every signaling event of the server on a
// single goroutine.
package coordinator

import "roomcast/types/message"

// Coordinator is an interface for the hub used by connection handlers.
//
//go:generate mockgen -destination=mock_coordinator.go -package=coordinator . Coordinator
type Coordinator interface {
	Register(s *Session) error
	Unregister(s *Session)
	Submit(req message.Request) error
}
