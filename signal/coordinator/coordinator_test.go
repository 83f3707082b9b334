package coordinator_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomcast/database/memory"
	"roomcast/metric"
	"roomcast/signal/coordinator"
	"roomcast/types/client/request"
	"roomcast/types/client/response"
	"roomcast/types/message"
)

func startHub(t *testing.T) *coordinator.Hub {
	t.Helper()
	hub := coordinator.New(memory.New(), metric.New(metric.Config{}), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

// next reads the next message of the session.
func next(t *testing.T, s *coordinator.Session) response.Message {
	t.Helper()
	select {
	case data, ok := <-s.Send():
		require.True(t, ok, "session closed")
		var env response.Common
		require.NoError(t, json.Unmarshal(data, &env))
		msg, err := response.Decode(env)
		require.NoError(t, err)
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

// until skips messages until one of the given type arrives.
func until(t *testing.T, s *coordinator.Session, typ string) response.Message {
	t.Helper()
	for {
		if msg := next(t, s); msg.Type() == typ {
			return msg
		}
	}
}

func connect(t *testing.T, hub *coordinator.Hub, id string) *coordinator.Session {
	t.Helper()
	s := coordinator.NewSession(id)
	require.NoError(t, hub.Register(s))
	welcome, ok := next(t, s).(response.Welcome)
	require.True(t, ok)
	assert.Equal(t, id, welcome.ConnectionID)
	return s
}

func call(t *testing.T, hub *coordinator.Hub, s *coordinator.Session, id int, msg request.Message) response.Ack {
	t.Helper()
	require.NoError(t, hub.Submit(message.Request{ConnectionID: s.ID, RequestID: id, Message: msg}))
	ack, ok := until(t, s, response.ACK).(response.Ack)
	require.True(t, ok)
	assert.Equal(t, id, ack.RequestID)
	return ack
}

func TestHub(t *testing.T) {
	t.Run("given controller and source when joined and relayed then messages reach the right peers", func(t *testing.T) {
		hub := startHub(t)
		admin := connect(t, hub, "admin")
		source := connect(t, hub, "source")

		ack := call(t, hub, admin, 1, request.CreateRoom{RoomID: "r1", Name: "Room", Password: "pw12"})
		require.True(t, ack.Success)
		assert.True(t, ack.IsAdmin)

		ack = call(t, hub, source, 2, request.JoinRoom{RoomID: "r1", Password: "pw12"})
		require.True(t, ack.Success)
		assert.False(t, ack.IsAdmin)
		assert.Len(t, ack.Participants, 2)

		until(t, admin, response.USER_JOINED)
		require.NoError(t, hub.Submit(message.Request{ConnectionID: "admin", Message: request.Relay{
			Kind: request.OFFER, TargetID: "source", Payload: json.RawMessage(`{"sdp":"x"}`),
		}}))
		relay, ok := until(t, source, response.OFFER).(response.Relay)
		require.True(t, ok)
		assert.Equal(t, "admin", relay.FromID)
		assert.Equal(t, "r1", relay.RoomID)
		assert.Equal(t, 1, hub.RoomCount())
	})

	t.Run("given wrong password when joined then ack carries the error", func(t *testing.T) {
		hub := startHub(t)
		admin := connect(t, hub, "admin")
		source := connect(t, hub, "source")
		call(t, hub, admin, 1, request.CreateRoom{RoomID: "r1", Password: "pw12"})

		ack := call(t, hub, source, 7, request.JoinRoom{RoomID: "r1", Password: "nope"})
		assert.False(t, ack.Success)
		assert.Equal(t, "incorrect password", ack.Error)
	})

	t.Run("given admin when unregistered then remaining participant is promoted", func(t *testing.T) {
		hub := startHub(t)
		admin := connect(t, hub, "admin")
		source := connect(t, hub, "source")
		call(t, hub, admin, 1, request.CreateRoom{RoomID: "r1", Password: "pw12"})
		call(t, hub, source, 2, request.JoinRoom{RoomID: "r1", Password: "pw12"})

		hub.Unregister(admin)
		assigned, ok := until(t, source, response.ADMIN_ASSIGNED).(response.AdminAssigned)
		require.True(t, ok)
		assert.Equal(t, "r1", assigned.RoomID)

		_, open := <-admin.Send()
		for open {
			_, open = <-admin.Send()
		}
	})

	t.Run("given source when kicked then it receives kicked and admin receives kick success", func(t *testing.T) {
		hub := startHub(t)
		admin := connect(t, hub, "admin")
		source := connect(t, hub, "source")
		call(t, hub, admin, 1, request.CreateRoom{RoomID: "r1", Password: "pw12"})
		call(t, hub, source, 2, request.JoinRoom{RoomID: "r1", Password: "pw12"})

		ack := call(t, hub, admin, 3, request.KickUser{TargetID: "source"})
		assert.True(t, ack.Success)
		kicked, ok := until(t, source, response.KICKED).(response.Kicked)
		require.True(t, ok)
		assert.Equal(t, "r1", kicked.RoomID)
	})

	t.Run("given stopped hub when registering then return stopped", func(t *testing.T) {
		hub := coordinator.New(memory.New(), metric.New(metric.Config{}), nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			hub.Run(ctx)
			close(done)
		}()
		cancel()
		<-done
		assert.ErrorIs(t, hub.Register(coordinator.NewSession("late")), coordinator.ErrStopped)
	})
}

func TestHubEvictsSlowConnection(t *testing.T) {
	hub := startHub(t)
	admin := connect(t, hub, "admin")
	slow := connect(t, hub, "slow")
	call(t, hub, admin, 1, request.CreateRoom{RoomID: "r1", Password: "pw"})
	call(t, hub, slow, 2, request.JoinRoom{RoomID: "r1", Password: "pw"})

	evicted := make(chan string, 1)
	go func() {
		for data := range admin.Send() {
			var env response.Common
			if json.Unmarshal(data, &env) != nil || env.Type != response.USER_LEFT {
				continue
			}
			if msg, err := response.Decode(env); err == nil {
				evicted <- msg.(response.UserLeft).ParticipantID
				return
			}
		}
	}()

	// slow never reads; every status update queues a snapshot for it.
	for i := 0; i < coordinator.SendBuffer+10; i++ {
		require.NoError(t, hub.Submit(message.Request{ConnectionID: "admin", Message: request.UpdateStreamStatus{HasVideo: i%2 == 0}}))
	}
	select {
	case id := <-evicted:
		assert.Equal(t, "slow", id)
	case <-time.After(2 * time.Second):
		t.Fatal("slow connection was not evicted")
	}
}
