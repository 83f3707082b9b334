// Package coordinator negotiates the media sessions of one client with the
// other members of its room.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go4org/hashtriemap"
	"github.com/pion/webrtc/v4"

	"roomcast/broker"
	"roomcast/broker/subscription"
	"roomcast/media"
	"roomcast/metric"
	"roomcast/types/client/request"
	"roomcast/types/client/response"
)

var (
	// ErrStopped is returned when the coordinator loop is not running anymore.
	ErrStopped = errors.New("coordinator stopped")

	errTransportFailed = errors.New("transport failed")
	errOfferTimeout    = errors.New("offer timed out")
	errRestartWindow   = errors.New("ice restart did not recover")
)

// SessionFailed is published on broker.Notice when a session stopped
// reconnecting. Restart resumes it.
type SessionFailed struct {
	PeerID   string
	Attempts int
	Err      string
}

// Coordinator keeps one media session per relevant peer. The room admin
// initiates toward every member that has video and the other members answer
// the admin.
type Coordinator struct {
	config   Config
	signaler Signaler
	factory  TransportFactory
	broker   *broker.Broker
	sub      *subscription.Subscription
	metrics  *metric.Metrics
	logger   *slog.Logger

	events     chan event
	done       chan struct{}
	stopOnce   sync.Once
	generation atomic.Uint64

	// overflow keeps callback events in order while events is full.
	overflowMu sync.Mutex
	overflow   []event
	draining   bool

	// Owned by Run.
	sessions     map[string]*session
	participants []response.Participant
	roomID       string
	adminID      string
	isAdmin      bool
	ready        bool

	views   hashtriemap.HashTrieMap[string, peerView]
	quality hashtriemap.HashTrieMap[string, media.Quality]
}

// New creates a Coordinator listening to the signaling messages published on
// b. metrics may be nil.
func New(config Config, s Signaler, f TransportFactory, b *broker.Broker, metrics *metric.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		config:   config.withDefaults(),
		signaler: s,
		factory:  f,
		broker:   b,
		sub:      b.Subscribe(DefaultEventBuffer, broker.Membership, broker.Signal, broker.Control),
		metrics:  metrics,
		logger:   logger,
		events:   make(chan event, DefaultEventBuffer),
		done:     make(chan struct{}),
		sessions: make(map[string]*session),
	}
}

// Run processes events until ctx is done. Every session is closed on return.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.stop()

	go c.collectStats(ctx)

	for {
		select {
		case <-ctx.Done():
			c.closeAll("coordinator stopped")
			return ctx.Err()
		case msg := <-c.sub.Receive():
			c.handleMessage(msg)
		case ev := <-c.events:
			c.handleEvent(ev)
		}
	}
}

func (c *Coordinator) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.broker.Unsubscribe(c.sub)
	})
}

// CaptureReady reports that the local side is ready to negotiate media.
// The admin sends no offer before it.
func (c *Coordinator) CaptureReady() error {
	return c.post(captureReady{})
}

// Restart tears down the session with peerID and negotiates it again with a
// fresh reconnect budget.
func (c *Coordinator) Restart(peerID string) error {
	return c.post(restartRequest{peerID: peerID})
}

// Close closes the session with peerID.
func (c *Coordinator) Close(peerID string) error {
	return c.post(closeRequest{peerID: peerID})
}

// Sessions returns the state of every open session.
func (c *Coordinator) Sessions() map[string]State {
	states := make(map[string]State)
	c.views.Range(func(id string, v peerView) bool {
		states[id] = v.State
		return true
	})
	return states
}

// Quality returns the last measured quality of the session with peerID.
func (c *Coordinator) Quality(peerID string) (media.Quality, bool) {
	return c.quality.Load(peerID)
}

func (c *Coordinator) post(ev event) error {
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// postAsync never blocks the caller. Events that do not fit in the buffer are
// delivered by a single drain goroutine in the order they were posted.
func (c *Coordinator) postAsync(ev event) {
	c.overflowMu.Lock()
	defer c.overflowMu.Unlock()
	if !c.draining {
		select {
		case c.events <- ev:
			return
		default:
		}
		c.draining = true
		go c.drain()
	}
	c.overflow = append(c.overflow, ev)
}

func (c *Coordinator) drain() {
	for {
		c.overflowMu.Lock()
		if len(c.overflow) == 0 {
			c.draining = false
			c.overflowMu.Unlock()
			return
		}
		ev := c.overflow[0]
		c.overflow = c.overflow[1:]
		c.overflowMu.Unlock()

		if err := c.post(ev); err != nil {
			c.overflowMu.Lock()
			c.overflow = nil
			c.draining = false
			c.overflowMu.Unlock()
			return
		}
	}
}

func (c *Coordinator) handleMessage(msg any) {
	switch m := msg.(type) {
	case response.ParticipantsUpdated:
		c.handleSnapshot(m)
	case response.Relay:
		c.handleRelay(m)
	case response.Kicked:
		c.logger.Info("kicked from room", "room", m.RoomID)
		c.leaveRoom("kicked")
	case response.AdminAssigned:
		c.handleAdminAssigned(m)
	default:
		c.logger.Debug("ignoring message", "message", fmt.Sprintf("%T", msg))
	}
}

func (c *Coordinator) handleEvent(ev event) {
	switch e := ev.(type) {
	case captureReady:
		c.ready = true
		c.reconcile()
	case restartRequest:
		c.handleRestart(e.peerID)
	case closeRequest:
		if s, ok := c.sessions[e.peerID]; ok {
			c.closeSession(s, "closed locally")
		}
	case transportState:
		if s := c.current(e.peerID, e.generation); s != nil {
			c.handleTransportState(s, e.state)
		}
	case localCandidate:
		if s := c.current(e.peerID, e.generation); s != nil {
			if err := c.relay(request.ICE_CANDIDATE, s.peerID, e.candidate); err != nil {
				c.logger.Warn("failed to send ice candidate", "peer", s.peerID, "error", err)
			}
		}
	case timerFired:
		if s := c.current(e.peerID, e.generation); s != nil && s.fired(e) {
			c.handleTimer(s, e.kind)
		}
	}
}

// current returns the session with peerID if generation is still its own.
func (c *Coordinator) current(peerID string, generation uint64) *session {
	s, ok := c.sessions[peerID]
	if !ok || s.generation != generation {
		return nil
	}
	return s
}

func (c *Coordinator) handleSnapshot(m response.ParticipantsUpdated) {
	if c.roomID != "" && c.roomID != m.RoomID {
		c.closeAll("room changed")
	}

	self := c.signaler.ID()
	present := make(map[string]bool, len(m.Participants))
	joined := false
	c.adminID = ""
	for _, p := range m.Participants {
		present[p.ID] = true
		if p.IsAdmin {
			c.adminID = p.ID
		}
		if p.ID == self {
			joined = true
			c.isAdmin = p.IsAdmin
		}
	}
	if !joined {
		c.leaveRoom("not a member")
		return
	}
	c.roomID = m.RoomID
	c.participants = m.Participants

	for id, s := range c.sessions {
		switch {
		case !present[id]:
			c.closeSession(s, "peer left")
		case c.isAdmin && s.role == Responder:
			c.closeSession(s, "became admin")
		case !c.isAdmin && (s.role == Initiator || id != c.adminID):
			c.closeSession(s, "peer is not the admin")
		}
	}
	c.reconcile()
}

func (c *Coordinator) handleAdminAssigned(m response.AdminAssigned) {
	if c.roomID != "" && m.RoomID != c.roomID {
		return
	}
	c.logger.Info("assigned room admin", "room", m.RoomID)
	self := c.signaler.ID()
	// The previous admin has left. The next snapshot confirms it.
	if c.adminID != "" && c.adminID != self {
		c.participants = without(c.participants, c.adminID)
	}
	c.isAdmin = true
	c.adminID = self
	for _, s := range c.sessions {
		if s.role == Responder {
			c.closeSession(s, "became admin")
		}
	}
	c.reconcile()
}

func without(participants []response.Participant, id string) []response.Participant {
	out := make([]response.Participant, 0, len(participants))
	for _, p := range participants {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// reconcile opens a session toward every member with video that has none.
func (c *Coordinator) reconcile() {
	if !c.isAdmin || !c.ready {
		return
	}
	self := c.signaler.ID()
	for _, p := range c.participants {
		if p.ID == self || !p.HasVideo {
			continue
		}
		if _, ok := c.sessions[p.ID]; ok {
			continue
		}
		s := newSession(p.ID, Initiator)
		c.sessions[p.ID] = s
		c.logger.Info("opening session", "peer", p.ID)
		c.connect(s)
	}
}

func (c *Coordinator) handleRestart(peerID string) {
	s, ok := c.sessions[peerID]
	if !ok {
		c.reconcile()
		return
	}
	c.logger.Info("restarting session", "peer", peerID)
	s.attempts = 0
	s.exhausted = false
	if s.role == Initiator {
		c.connect(s)
		return
	}
	c.teardown(s)
	s.state = Idle
	c.publish(s)
}

func (c *Coordinator) handleRelay(m response.Relay) {
	if m.RoomID != "" && c.roomID != "" && m.RoomID != c.roomID {
		c.logger.Debug("dropping signal of another room", "room", m.RoomID, "from", m.FromID)
		return
	}
	switch m.Kind {
	case response.OFFER, response.ANSWER:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(m.Payload, &desc); err != nil {
			c.logger.Warn("invalid session description", "from", m.FromID, "error", err)
			return
		}
		if m.Kind == response.OFFER {
			c.handleOffer(m.FromID, desc)
		} else {
			c.handleAnswer(m.FromID, desc)
		}
	case response.ICE_CANDIDATE:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(m.Payload, &candidate); err != nil {
			c.logger.Warn("invalid ice candidate", "from", m.FromID, "error", err)
			return
		}
		c.handleRemoteCandidate(m.FromID, candidate)
	}
}

func (c *Coordinator) handleOffer(from string, desc webrtc.SessionDescription) {
	if c.isAdmin || from != c.adminID {
		c.logger.Debug("ignoring offer", "from", from)
		return
	}
	s, ok := c.sessions[from]
	if !ok {
		s = newSession(from, Responder)
		c.sessions[from] = s
	}
	if s.exhausted {
		s.exhausted = false
		s.attempts = 0
	}
	if s.transport == nil {
		if err := c.startTransport(s); err != nil {
			c.recreate(s, err)
			return
		}
	}

	if err := s.transport.SetRemoteDescription(desc); err != nil {
		c.recreate(s, err)
		return
	}
	c.applyPending(s)
	s.state = OfferReceived

	answer, err := s.transport.CreateAnswer()
	if err == nil {
		err = c.relay(request.ANSWER, s.peerID, answer)
	}
	if err != nil {
		c.recreate(s, err)
		return
	}
	s.state = Connected
	c.publish(s)
}

func (c *Coordinator) handleAnswer(from string, desc webrtc.SessionDescription) {
	s, ok := c.sessions[from]
	if !ok || s.role != Initiator || s.state != OfferSent {
		c.logger.Debug("discarding answer", "from", from)
		return
	}
	s.stopTimer(offerTimeout)
	if err := s.transport.SetRemoteDescription(desc); err != nil {
		c.fail(s, err)
		return
	}
	c.applyPending(s)
	s.state = Connected
	c.publish(s)
}

func (c *Coordinator) handleRemoteCandidate(from string, candidate webrtc.ICECandidateInit) {
	s, ok := c.sessions[from]
	if !ok {
		// The offer that follows opens the session.
		if c.isAdmin || from != c.adminID {
			return
		}
		s = newSession(from, Responder)
		c.sessions[from] = s
		c.publish(s)
	}
	if s.transport == nil || !s.remoteSet {
		s.pending = append(s.pending, candidate)
		return
	}
	if err := s.transport.AddICECandidate(candidate); err != nil {
		c.logger.Warn("failed to add ice candidate", "peer", from, "error", err)
	}
}

// applyPending marks the remote description as set and applies the queued
// candidates in the order they arrived.
func (c *Coordinator) applyPending(s *session) {
	s.remoteSet = true
	for _, candidate := range s.takePending() {
		if err := s.transport.AddICECandidate(candidate); err != nil {
			c.logger.Warn("failed to add ice candidate", "peer", s.peerID, "error", err)
		}
	}
}

func (c *Coordinator) handleTransportState(s *session, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.transportUp = true
		s.restarted = false
		s.attempts = 0
		s.stopTimer(restartWindow)
		if s.state == Failed {
			s.state = Connected
		}
		c.logger.Info("session connected", "peer", s.peerID)
	case webrtc.PeerConnectionStateDisconnected:
		s.transportUp = false
	case webrtc.PeerConnectionStateFailed:
		s.transportUp = false
		c.fail(s, errTransportFailed)
		return
	}
	c.publish(s)
}

func (c *Coordinator) handleTimer(s *session, kind timerKind) {
	switch kind {
	case offerTimeout:
		if s.state == OfferSent {
			c.fail(s, errOfferTimeout)
		}
	case restartWindow:
		if !s.transportUp {
			c.recreate(s, errRestartWindow)
		}
	case retryDue:
		if s.state == Idle && s.transport == nil {
			c.connect(s)
		}
	}
}

// fail tries one ICE restart and recreates the session once that was spent.
func (c *Coordinator) fail(s *session, cause error) {
	c.logger.Warn("session failed", "peer", s.peerID, "state", s.state.String(), "error", cause)
	s.state = Failed
	if s.restarted || s.transport == nil {
		c.recreate(s, cause)
		return
	}
	s.restarted = true
	if s.role == Initiator {
		if err := c.sendOffer(s, true); err != nil {
			c.recreate(s, err)
			return
		}
	}
	c.arm(s, restartWindow, c.config.RestartWindow)
	c.publish(s)
}

// recreate tears the transport down and schedules a new negotiation after
// the backoff delay. Responders wait for the next offer instead.
func (c *Coordinator) recreate(s *session, cause error) {
	c.teardown(s)
	s.attempts++
	delay, ok := c.config.Backoff.Next(s.attempts)
	if !ok {
		s.state = Failed
		s.exhausted = true
		c.publish(s)
		c.logger.Error("giving up on session", "peer", s.peerID, "attempts", s.attempts-1, "error", cause)
		c.broker.Publish(broker.Notice, SessionFailed{PeerID: s.peerID, Attempts: s.attempts - 1, Err: cause.Error()})
		return
	}
	s.state = Idle
	if s.role == Initiator {
		c.logger.Info("reconnecting session", "peer", s.peerID, "attempt", s.attempts, "delay", delay)
		c.arm(s, retryDue, delay)
	}
	c.publish(s)
}

// connect negotiates s from scratch on a new transport.
func (c *Coordinator) connect(s *session) {
	if err := c.startTransport(s); err != nil {
		c.recreate(s, err)
		return
	}
	if s.role == Initiator {
		if err := c.sendOffer(s, false); err != nil {
			c.recreate(s, err)
			return
		}
	}
	c.publish(s)
}

func (c *Coordinator) startTransport(s *session) error {
	c.teardown(s)
	t, err := c.factory.NewTransport(s.role == Initiator, s.peerID)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	peerID, generation := s.peerID, s.generation
	t.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		c.postAsync(localCandidate{peerID: peerID, generation: generation, candidate: candidate})
	})
	t.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.postAsync(transportState{peerID: peerID, generation: generation, state: state})
	})
	s.transport = t
	return nil
}

func (c *Coordinator) sendOffer(s *session, iceRestart bool) error {
	offer, err := s.transport.CreateOffer(iceRestart)
	if err != nil {
		return err
	}
	if err := c.relay(request.OFFER, s.peerID, offer); err != nil {
		return err
	}
	s.state = OfferSent
	c.arm(s, offerTimeout, c.config.OfferTimeout)
	return nil
}

func (c *Coordinator) relay(kind, targetID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return c.signaler.Emit(request.Relay{Kind: kind, TargetID: targetID, RoomID: c.roomID, Payload: data})
}

func (c *Coordinator) arm(s *session, kind timerKind, d time.Duration) {
	s.stopTimer(kind)
	s.timerSeq++
	s.armed[kind] = s.timerSeq
	ev := timerFired{peerID: s.peerID, generation: s.generation, kind: kind, seq: s.timerSeq}
	s.timers[kind] = time.AfterFunc(d, func() {
		_ = c.post(ev)
	})
}

// teardown closes the transport of s and starts a new generation, so late
// callbacks and timers of the old one are dropped.
func (c *Coordinator) teardown(s *session) {
	s.stopTimers()
	if s.transport != nil {
		if err := s.transport.Close(); err != nil && !errors.Is(err, media.ErrClosed) {
			c.logger.Debug("failed to close transport", "peer", s.peerID, "error", err)
		}
		s.transport = nil
		s.pending = nil
	}
	s.remoteSet = false
	s.transportUp = false
	s.restarted = false
	s.generation = c.generation.Add(1)
}

func (c *Coordinator) closeSession(s *session, reason string) {
	c.teardown(s)
	s.state = Closed
	delete(c.sessions, s.peerID)
	c.views.Delete(s.peerID)
	c.quality.Delete(s.peerID)
	c.logger.Info("session closed", "peer", s.peerID, "reason", reason)
}

func (c *Coordinator) closeAll(reason string) {
	for _, s := range c.sessions {
		c.closeSession(s, reason)
	}
}

func (c *Coordinator) leaveRoom(reason string) {
	c.closeAll(reason)
	c.roomID = ""
	c.adminID = ""
	c.isAdmin = false
	c.participants = nil
}

func (c *Coordinator) publish(s *session) {
	c.views.Store(s.peerID, s.snapshot())
}
