package signal_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomcast/signal"
	"roomcast/types/client/request"
	"roomcast/types/client/response"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := signal.New(signal.Config{Port: signal.DefaultPort, Rate: signal.DefaultRate, Burst: signal.DefaultBurst}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Hub().Run(ctx)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, id int, msg request.Message) {
	t.Helper()
	env, err := request.Encode(id, msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func read(t *testing.T, conn *websocket.Conn, typ string) response.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env response.Common
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type != typ {
			continue
		}
		msg, err := response.Decode(env)
		require.NoError(t, err)
		return msg
	}
}

func TestSignal(t *testing.T) {
	srv := newTestServer(t)

	t.Run("given health endpoint when requested then return ok", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("given two clients when one creates and the other joins then both see the room", func(t *testing.T) {
		admin := dial(t, srv)
		source := dial(t, srv)
		adminID := read(t, admin, response.WELCOME).(response.Welcome).ConnectionID
		sourceID := read(t, source, response.WELCOME).(response.Welcome).ConnectionID
		require.NotEmpty(t, adminID)
		require.NotEqual(t, adminID, sourceID)

		send(t, admin, 1, request.CreateRoom{RoomID: "r1", Name: "Room", Password: "pw12"})
		ack := read(t, admin, response.ACK).(response.Ack)
		require.True(t, ack.Success)

		send(t, source, 1, request.JoinRoom{RoomID: "r1", Password: "pw12"})
		ack = read(t, source, response.ACK).(response.Ack)
		require.True(t, ack.Success)
		assert.False(t, ack.IsAdmin)

		update := read(t, admin, response.PARTICIPANTS_UPDATED).(response.ParticipantsUpdated)
		assert.Len(t, update.Participants, 2)

		send(t, source, 0, request.Relay{Kind: request.ANSWER, TargetID: adminID, Payload: json.RawMessage(`{"type":"answer"}`)})
		relay := read(t, admin, response.ANSWER).(response.Relay)
		assert.Equal(t, sourceID, relay.FromID)
		assert.JSONEq(t, `{"type":"answer"}`, string(relay.Payload))
	})
}

func TestMalformedRequest(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "given a join with a non-object payload when sent with a request id then reject it",
			raw:  `{"request_id":7,"type":"join-room","payload":"oops"}`,
		},
		{
			name: "given an unknown type when sent with a request id then reject it",
			raw:  `{"request_id":7,"type":"dance","payload":{}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, srv)
			read(t, conn, response.WELCOME)

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)))
			ack := read(t, conn, response.ACK).(response.Ack)
			assert.Equal(t, 7, ack.RequestID)
			assert.False(t, ack.Success)
			assert.Equal(t, "invalid argument", ack.Error)

			// The connection stays usable afterwards.
			send(t, conn, 8, request.CreateRoom{RoomID: "room-" + t.Name(), Name: "Room", Password: "pw12"})
			ack = read(t, conn, response.ACK).(response.Ack)
			assert.Equal(t, 8, ack.RequestID)
			assert.True(t, ack.Success)
		})
	}
}
