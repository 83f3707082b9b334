// Package media wraps the peer-to-peer transport of one media session.
package media

import (
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Transport is the peer-to-peer connection of one media session.
type Transport interface {
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(candidate webrtc.ICECandidateInit))
	OnConnectionStateChange(f func(state webrtc.PeerConnectionState))
	Stats() Snapshot
	Close() error
}

// Capturer provides the local tracks a source sends.
type Capturer interface {
	Tracks() []webrtc.TrackLocal
}

// Sink consumes the packets of received tracks, for example to render them.
type Sink interface {
	WriteRTP(peerID string, kind webrtc.RTPCodecType, packet *rtp.Packet) error
}

// DiscardSink drops every packet.
type DiscardSink struct{}

// WriteRTP implements Sink.
func (DiscardSink) WriteRTP(string, webrtc.RTPCodecType, *rtp.Packet) error {
	return nil
}
