package coordinator

import (
	"roomcast/media"
	"roomcast/types/client/request"
)

// Signaler sends messages over the signaling channel without waiting for an
// acknowledgement.
type Signaler interface {
	ID() string
	Emit(msg request.Message) error
}

// TransportFactory creates the transport of a session.
type TransportFactory interface {
	NewTransport(initiator bool, peerID string) (media.Transport, error)
}
