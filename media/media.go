package media

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport closed")

// Factory builds peer transports sharing one WebRTC API.
type Factory struct {
	api      *webrtc.API
	config   webrtc.Configuration
	capturer Capturer
	sink     Sink
	logger   *slog.Logger
}

// NewFactory creates a Factory. A nil capturer sends nothing and a nil sink
// discards received media.
func NewFactory(config Config, capturer Capturer, sink Sink, logger *slog.Logger) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	s := webrtc.SettingEngine{}
	if err := config.SetPortRange(&s); err != nil {
		return nil, err
	}

	if sink == nil {
		sink = DiscardSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		api:      webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		config:   config.WebRTCConfiguration(),
		capturer: capturer,
		sink:     sink,
		logger:   logger,
	}, nil
}

// NewTransport creates the transport of a session with peerID. The initiator
// receives media and the responder sends the capturer's tracks.
func (f *Factory) NewTransport(initiator bool, peerID string) (Transport, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	t := &PeerTransport{
		pc:       pc,
		peerID:   peerID,
		sink:     f.sink,
		counters: &Counters{},
		logger:   f.logger.With("peer", peerID),
	}
	pc.OnTrack(t.receive)

	if initiator {
		err = t.addReceivers()
	} else {
		err = t.addSenders(f.capturer)
	}
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	return t, nil
}

// PeerTransport is a Transport backed by a pion peer connection.
type PeerTransport struct {
	pc       *webrtc.PeerConnection
	peerID   string
	sink     Sink
	counters *Counters

	mu     sync.Mutex
	closed bool

	logger *slog.Logger
}

func (t *PeerTransport) addReceivers() error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := t.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("failed to add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

func (t *PeerTransport) addSenders(capturer Capturer) error {
	if capturer == nil {
		return nil
	}
	for _, track := range capturer.Tracks() {
		sender, err := t.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("failed to add track %s: %w", track.ID(), err)
		}

		// Read incoming RTCP packets
		// Before these packets are returned they are processed by interceptors. For things
		// like NACK this needs to be called.
		go func() {
			rtcpBuf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(rtcpBuf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (t *PeerTransport) receive(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	t.logger.Info("track started", "kind", track.Kind().String(), "codec", track.Codec().MimeType)

	stream := newStreamCounter(t.counters, track.Kind() == webrtc.RTPCodecTypeVideo)
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			t.logger.Debug("track ended", "kind", track.Kind().String(), "error", err)
			return
		}
		stream.count(packet)
		if err := t.sink.WriteRTP(t.peerID, track.Kind(), packet); err != nil {
			t.logger.Warn("sink rejected packet", "error", err)
		}
	}
}

// CreateOffer creates an offer and sets it as the local description.
func (t *PeerTransport) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return offer, nil
}

// CreateAnswer creates an answer and sets it as the local description.
func (t *PeerTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return answer, nil
}

// SetRemoteDescription applies an offer or answer of the peer.
func (t *PeerTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

// AddICECandidate applies a candidate of the peer.
func (t *PeerTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if err := t.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ice candidate: %w", err)
	}
	return nil
}

// OnICECandidate sets the handler of gathered local candidates.
func (t *PeerTransport) OnICECandidate(f func(candidate webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		f(c.ToJSON())
	})
}

// OnConnectionStateChange sets the handler of connection state changes.
func (t *PeerTransport) OnConnectionStateChange(f func(state webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Debug("connection state has changed", "state", state.String())
		f(state)
	})
}

// Stats returns the cumulative counters of received media.
func (t *PeerTransport) Stats() Snapshot {
	return t.counters.Snapshot()
}

// Close closes the peer connection. Closing twice returns ErrClosed.
func (t *PeerTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	t.mu.Unlock()
	return t.pc.Close()
}
