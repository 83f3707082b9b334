package coordinator

import (
	"time"

	"github.com/pion/webrtc/v4"

	"roomcast/media"
)

// session is the negotiation state toward one peer. It is owned by the
// coordinator loop.
type session struct {
	peerID     string
	role       Role
	state      State
	generation uint64
	transport  media.Transport

	// remoteSet reports whether the current transport has a remote
	// description. Candidates received before that wait in pending.
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	transportUp bool
	restarted   bool
	attempts    int
	exhausted   bool

	timers   [timerKinds]*time.Timer
	armed    [timerKinds]uint64
	timerSeq uint64
}

func newSession(peerID string, role Role) *session {
	return &session{peerID: peerID, role: role, state: Idle}
}

func (s *session) stopTimer(kind timerKind) {
	if t := s.timers[kind]; t != nil {
		t.Stop()
		s.timers[kind] = nil
	}
	s.armed[kind] = 0
}

// fired reports whether ev comes from the live arming of its kind and
// clears that arming.
func (s *session) fired(ev timerFired) bool {
	if s.armed[ev.kind] != ev.seq {
		return false
	}
	s.timers[ev.kind] = nil
	s.armed[ev.kind] = 0
	return true
}

func (s *session) stopTimers() {
	for k := range s.timers {
		s.stopTimer(timerKind(k))
	}
}

// takePending returns the queued candidates and leaves the queue empty.
func (s *session) takePending() []webrtc.ICECandidateInit {
	pending := s.pending
	s.pending = nil
	return pending
}

// peerView is the read-only copy of a session published to other goroutines.
type peerView struct {
	Role       Role
	State      State
	Generation uint64
	Transport  media.Transport
}

func (s *session) snapshot() peerView {
	return peerView{Role: s.role, State: s.state, Generation: s.generation, Transport: s.transport}
}
