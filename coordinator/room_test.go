package coordinator

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcast/broker"
	"roomcast/client"
	signalserver "roomcast/signal"
	"roomcast/types/client/request"
)

// roomPeer is a coordinator talking to a real signaling server with fake media.
type roomPeer struct {
	client      *client.Client
	coordinator *Coordinator
	factory     *fakeFactory
}

func startSignalServer(t *testing.T) string {
	t.Helper()
	s := signalserver.New(signalserver.Config{
		Port:  signalserver.DefaultPort,
		Rate:  signalserver.DefaultRate,
		Burst: signalserver.DefaultBurst,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go s.Hub().Run(ctx)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialPeer(t *testing.T, url string) *roomPeer {
	t.Helper()
	b := broker.New()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	c, err := client.Dial(ctx, url, b, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	f := newFakeFactory()
	return &roomPeer{
		client:      c,
		coordinator: New(Config{}, c, f, b, nil, slog.New(slog.NewTextHandler(io.Discard, nil))),
		factory:     f,
	}
}

func (p *roomPeer) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.coordinator.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func applied(tr *fakeTransport, want ...string) func() bool {
	return func() bool {
		return slices.Equal(tr.appliedCandidates(), want)
	}
}

func TestRoomNegotiation(t *testing.T) {
	url := startSignalServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	controller := dialPeer(t, url)
	source := dialPeer(t, url)
	controllerID, sourceID := controller.client.ID(), source.client.ID()
	controller.run(t)

	ack, err := controller.client.Call(ctx, request.CreateRoom{RoomID: "r1", Name: "Room", Password: "pw12"})
	require.NoError(t, err)
	require.True(t, ack.IsAdmin)
	require.NoError(t, controller.coordinator.CaptureReady())

	// The source queues signaling until its loop starts, so the controller
	// is observed waiting for the answer.
	_, err = source.client.Call(ctx, request.JoinRoom{RoomID: "r1", Password: "pw12"})
	require.NoError(t, err)
	_, err = source.client.Call(ctx, request.UpdateStreamStatus{RoomID: "r1", HasVideo: true})
	require.NoError(t, err)
	require.NoError(t, source.coordinator.CaptureReady())

	offerer := controller.factory.next(t)
	assert.True(t, offerer.initiator)
	assert.Equal(t, sourceID, offerer.peerID)
	require.Eventually(t, inState(controller.coordinator, sourceID, OfferSent), waitFor, tick)
	assert.Equal(t, []bool{false}, offerer.offerFlags())
	assert.Empty(t, source.coordinator.Sessions())

	source.run(t)
	answerer := source.factory.next(t)
	assert.False(t, answerer.initiator)
	assert.Equal(t, controllerID, answerer.peerID)
	require.Eventually(t, inState(source.coordinator, controllerID, Connected), waitFor, tick)
	remote := answerer.remoteDescriptions()
	require.Len(t, remote, 1)
	assert.Equal(t, webrtc.SDPTypeOffer, remote[0].Type)

	require.Eventually(t, inState(controller.coordinator, sourceID, Connected), waitFor, tick)
	remote = offerer.remoteDescriptions()
	require.Len(t, remote, 1)
	assert.Equal(t, webrtc.SDPTypeAnswer, remote[0].Type)

	offerer.gather("candidate:controller")
	answerer.gather("candidate:source")
	require.Eventually(t, applied(answerer, "candidate:controller"), waitFor, tick)
	require.Eventually(t, applied(offerer, "candidate:source"), waitFor, tick)
	offerer.setState(webrtc.PeerConnectionStateConnected)
	answerer.setState(webrtc.PeerConnectionStateConnected)

	_, err = controller.client.Call(ctx, request.KickUser{RoomID: "r1", TargetID: sourceID})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(source.coordinator.Sessions()) == 0 }, waitFor, tick)
	assert.True(t, answerer.isClosed())
	require.Eventually(t, func() bool { return !hasSession(controller.coordinator, sourceID)() }, waitFor, tick)
	assert.True(t, offerer.isClosed())
}
