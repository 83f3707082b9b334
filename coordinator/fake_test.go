package coordinator

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"roomcast/media"
	"roomcast/types/client/request"
)

type fakeTransport struct {
	mu          sync.Mutex
	initiator   bool
	peerID      string
	offers      []bool
	remote      []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	closed      bool
	stats       media.Snapshot
	onCandidate func(webrtc.ICECandidateInit)
	onState     func(webrtc.PeerConnectionState)
}

func (f *fakeTransport) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, iceRestart)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = append(f.remote, desc)
	return nil
}

func (f *fakeTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeTransport) OnICECandidate(h func(webrtc.ICECandidateInit)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCandidate = h
}

func (f *fakeTransport) OnConnectionStateChange(h func(webrtc.PeerConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = h
}

func (f *fakeTransport) Stats() media.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return media.ErrClosed
	}
	f.closed = true
	return nil
}

func (f *fakeTransport) setState(state webrtc.PeerConnectionState) {
	f.mu.Lock()
	h := f.onState
	f.mu.Unlock()
	h(state)
}

func (f *fakeTransport) gather(candidate string) {
	f.mu.Lock()
	h := f.onCandidate
	f.mu.Unlock()
	h(webrtc.ICECandidateInit{Candidate: candidate})
}

func (f *fakeTransport) setStats(s media.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = s
}

func (f *fakeTransport) offerFlags() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.offers...)
}

func (f *fakeTransport) remoteDescriptions() []webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.SessionDescription(nil), f.remote...)
}

func (f *fakeTransport) appliedCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	applied := make([]string, 0, len(f.candidates))
	for _, c := range f.candidates {
		applied = append(applied, c.Candidate)
	}
	return applied
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeFactory struct {
	mu      sync.Mutex
	err     error
	created chan *fakeTransport
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: make(chan *fakeTransport, 32)}
}

func (f *fakeFactory) NewTransport(initiator bool, peerID string) (media.Transport, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	t := &fakeTransport{initiator: initiator, peerID: peerID}
	f.created <- t
	return t, nil
}

func (f *fakeFactory) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFactory) next(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case tr := <-f.created:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("no transport created")
		return nil
	}
}

type fakeSignaler struct {
	id   string
	sent chan request.Relay
}

func newFakeSignaler(id string) *fakeSignaler {
	return &fakeSignaler{id: id, sent: make(chan request.Relay, 64)}
}

func (f *fakeSignaler) ID() string {
	return f.id
}

func (f *fakeSignaler) Emit(msg request.Message) error {
	if relay, ok := msg.(request.Relay); ok {
		f.sent <- relay
	}
	return nil
}

func (f *fakeSignaler) next(t *testing.T) request.Relay {
	t.Helper()
	select {
	case relay := <-f.sent:
		return relay
	case <-time.After(2 * time.Second):
		t.Fatal("nothing was sent")
		return request.Relay{}
	}
}

func (f *fakeSignaler) nextOf(t *testing.T, kind string) request.Relay {
	t.Helper()
	for {
		if relay := f.next(t); relay.Kind == kind {
			return relay
		}
	}
}

func (f *fakeSignaler) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case relay := <-f.sent:
		t.Fatalf("unexpected %s to %s", relay.Kind, relay.TargetID)
	case <-time.After(d):
	}
}
