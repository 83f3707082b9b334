package coordinator

import "sync"

// SendBuffer is the number of outbound messages queued per connection before
// the connection is considered too slow and evicted.
const SendBuffer = 256

// Session is the per-connection record of the hub. Send is closed by the hub
// when the connection is unregistered or evicted.
type Session struct {
	ID   string
	send chan []byte
	once sync.Once
}

// NewSession creates a session for the connection with the given id.
func NewSession(id string) *Session {
	return &Session{
		ID:   id,
		send: make(chan []byte, SendBuffer),
	}
}

// Send returns the queue of encoded messages for the connection.
func (s *Session) Send() <-chan []byte {
	return s.send
}

// enqueue queues data without blocking. It reports false when the queue is full.
func (s *Session) enqueue(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.once.Do(func() {
		close(s.send)
	})
}
