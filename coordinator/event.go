package coordinator

import (
	"github.com/pion/webrtc/v4"
)

// event is an input of the coordinator loop.
type event interface {
	isEvent()
}

type timerKind int

const (
	offerTimeout timerKind = iota
	restartWindow
	retryDue
	timerKinds
)

func (k timerKind) String() string {
	switch k {
	case offerTimeout:
		return "offer-timeout"
	case restartWindow:
		return "restart-window"
	case retryDue:
		return "retry-due"
	}
	return "unknown"
}

type captureReady struct{}

type restartRequest struct {
	peerID string
}

type closeRequest struct {
	peerID string
}

// transportState and localCandidate carry the generation of the transport
// they came from.
type transportState struct {
	peerID     string
	generation uint64
	state      webrtc.PeerConnectionState
}

type localCandidate struct {
	peerID     string
	generation uint64
	candidate  webrtc.ICECandidateInit
}

// timerFired also carries the sequence of the arming it came from. Only the
// latest arming of a kind is honored.
type timerFired struct {
	peerID     string
	generation uint64
	kind       timerKind
	seq        uint64
}

func (captureReady) isEvent()   {}
func (restartRequest) isEvent() {}
func (closeRequest) isEvent()   {}
func (transportState) isEvent() {}
func (localCandidate) isEvent() {}
func (timerFired) isEvent()     {}
