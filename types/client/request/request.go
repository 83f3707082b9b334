package request

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Constants for request types
const (
	CREATE_ROOM     = "create-room"
	JOIN_ROOM       = "join-room"
	UPDATE_STATUS   = "update-stream-status"
	UPDATE_SETTINGS = "update-stream-settings"
	OFFER           = "offer"
	ANSWER          = "answer"
	ICE_CANDIDATE   = "ice-candidate"
	KICK_USER       = "kick-user"
	GET_ROOM_INFO   = "get-room-info"
	LEAVE_ROOM      = "leave-room"
)

// ErrUnknownType is returned when the request type is not one of the known types.
var ErrUnknownType = errors.New("unknown request type")

// Message is a request sent by a client. The implementations below are the
// complete set of messages a client may send.
type Message interface {
	Type() string
	isRequest()
}

// CreateRoom is data type for creating a room. The creator becomes its admin.
type CreateRoom struct {
	RoomID   string `json:"room_id"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// JoinRoom is data type for joining an existing room.
type JoinRoom struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password"`
}

// UpdateStreamStatus reports the caller's own capture flags.
type UpdateStreamStatus struct {
	RoomID   string `json:"room_id,omitempty"`
	HasVideo bool   `json:"has_video"`
	HasAudio bool   `json:"has_audio"`
}

// UpdateStreamSettings merges the non-nil fields into the caller's stream settings.
type UpdateStreamSettings struct {
	RoomID     string  `json:"room_id,omitempty"`
	Resolution *string `json:"resolution,omitempty"`
	FPS        *int    `json:"fps,omitempty"`
	Bitrate    *int    `json:"bitrate,omitempty"`
}

// Relay is an offer, answer or ICE candidate addressed to one peer. Payload is
// forwarded untouched.
type Relay struct {
	Kind     string          `json:"-"`
	TargetID string          `json:"target_id"`
	RoomID   string          `json:"room_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// KickUser asks the server to remove TargetID from the room.
type KickUser struct {
	RoomID   string `json:"room_id,omitempty"`
	TargetID string `json:"target_id"`
}

// GetRoomInfo asks for the room details.
type GetRoomInfo struct {
	RoomID string `json:"room_id,omitempty"`
}

// LeaveRoom leaves a room without closing the connection.
type LeaveRoom struct {
	RoomID string `json:"room_id,omitempty"`
}

func (CreateRoom) Type() string           { return CREATE_ROOM }
func (JoinRoom) Type() string             { return JOIN_ROOM }
func (UpdateStreamStatus) Type() string   { return UPDATE_STATUS }
func (UpdateStreamSettings) Type() string { return UPDATE_SETTINGS }
func (r Relay) Type() string              { return r.Kind }
func (KickUser) Type() string             { return KICK_USER }
func (GetRoomInfo) Type() string          { return GET_ROOM_INFO }
func (LeaveRoom) Type() string            { return LEAVE_ROOM }

func (CreateRoom) isRequest()           {}
func (JoinRoom) isRequest()             {}
func (UpdateStreamStatus) isRequest()   {}
func (UpdateStreamSettings) isRequest() {}
func (Relay) isRequest()                {}
func (KickUser) isRequest()             {}
func (GetRoomInfo) isRequest()          {}
func (LeaveRoom) isRequest()            {}

// IsRelay reports whether the type is forwarded to a single peer.
func IsRelay(typ string) bool {
	return typ == OFFER || typ == ANSWER || typ == ICE_CANDIDATE
}

// Decode parses the payload of the given request by its type.
func Decode(req Common) (Message, error) {
	var (
		msg Message
		err error
	)
	switch req.Type {
	case CREATE_ROOM:
		msg, err = decode[CreateRoom](req.Payload)
	case JOIN_ROOM:
		msg, err = decode[JoinRoom](req.Payload)
	case UPDATE_STATUS:
		msg, err = decode[UpdateStreamStatus](req.Payload)
	case UPDATE_SETTINGS:
		msg, err = decode[UpdateStreamSettings](req.Payload)
	case OFFER, ANSWER, ICE_CANDIDATE:
		var relay Relay
		relay, err = decode[Relay](req.Payload)
		relay.Kind = req.Type
		msg = relay
	case KICK_USER:
		msg, err = decode[KickUser](req.Payload)
	case GET_ROOM_INFO:
		msg, err = decode[GetRoomInfo](req.Payload)
	case LEAVE_ROOM:
		msg, err = decode[LeaveRoom](req.Payload)
	default:
		return nil, fmt.Errorf("%q: %w", req.Type, ErrUnknownType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", req.Type, err)
	}
	return msg, nil
}

// Encode wraps the message into a Common envelope.
func Encode(requestID int, msg Message) (Common, error) {
	if relay, ok := msg.(Relay); ok && !IsRelay(relay.Kind) {
		return Common{}, fmt.Errorf("relay kind %q: %w", relay.Kind, ErrUnknownType)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Common{}, fmt.Errorf("failed to marshal %s payload: %w", msg.Type(), err)
	}
	return Common{
		RequestID: requestID,
		Type:      msg.Type(),
		Payload:   payload,
	}, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
