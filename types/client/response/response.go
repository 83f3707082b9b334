// Package response provides data types for server response to client.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Constants for response types
const (
	WELCOME              = "welcome"
	ACK                  = "ack"
	PARTICIPANTS_UPDATED = "participants-updated"
	USER_JOINED          = "user-joined"
	USER_LEFT            = "user-left"
	SETTINGS_UPDATED     = "participant-settings-updated"
	OFFER                = "offer"
	ANSWER               = "answer"
	ICE_CANDIDATE        = "ice-candidate"
	KICKED               = "kicked"
	KICK_SUCCESS         = "kick-success"
	ADMIN_ASSIGNED       = "admin-assigned"
)

// ErrUnknownType is returned when the response type is not one of the known types.
var ErrUnknownType = errors.New("unknown response type")

// Common is the envelope of every server message. RequestID is only set on acks.
type Common struct {
	RequestID int             `json:"request_id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Message is a message sent by the server. The implementations below are the
// complete set of messages a client may receive.
type Message interface {
	Type() string
	isResponse()
}

// StreamSettings is the advisory quality a source streams at.
type StreamSettings struct {
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
	Bitrate    int    `json:"bitrate"`
}

// Participant is the public view of one room member.
type Participant struct {
	ID             string         `json:"id"`
	IsAdmin        bool           `json:"is_admin"`
	HasVideo       bool           `json:"has_video"`
	HasAudio       bool           `json:"has_audio"`
	StreamSettings StreamSettings `json:"stream_settings"`
}

// RoomInfo is the public view of a room.
type RoomInfo struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	IsAdmin      bool          `json:"is_admin"`
	Participants []Participant `json:"participants"`
}

// Welcome tells a client the connection id the server assigned to it.
type Welcome struct {
	ConnectionID string `json:"connection_id"`
}

// Ack is the acknowledgement of a request carrying a request id.
type Ack struct {
	RequestID    int           `json:"-"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	RoomID       string        `json:"room_id,omitempty"`
	IsAdmin      bool          `json:"is_admin,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Room         *RoomInfo     `json:"room,omitempty"`
}

// ParticipantsUpdated is the full membership snapshot of a room.
type ParticipantsUpdated struct {
	RoomID       string        `json:"room_id"`
	Participants []Participant `json:"participants"`
}

// UserJoined notifies the existing members of a newcomer.
type UserJoined struct {
	RoomID      string      `json:"room_id"`
	Participant Participant `json:"participant"`
}

// UserLeft notifies the remaining members of a departure.
type UserLeft struct {
	RoomID        string `json:"room_id"`
	ParticipantID string `json:"participant_id"`
}

// SettingsUpdated notifies the admin that a source changed its stream settings.
type SettingsUpdated struct {
	RoomID        string         `json:"room_id"`
	ParticipantID string         `json:"participant_id"`
	Settings      StreamSettings `json:"settings"`
}

// Relay is an offer, answer or ICE candidate from FromID.
type Relay struct {
	Kind    string          `json:"-"`
	FromID  string          `json:"from_id"`
	RoomID  string          `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

// Kicked informs the removed participant.
type Kicked struct {
	RoomID string `json:"room_id"`
}

// KickSuccess confirms a kick to the admin who issued it.
type KickSuccess struct {
	RoomID   string `json:"room_id"`
	TargetID string `json:"target_id"`
}

// AdminAssigned informs the participant promoted to admin.
type AdminAssigned struct {
	RoomID string `json:"room_id"`
}

func (Welcome) Type() string             { return WELCOME }
func (Ack) Type() string                 { return ACK }
func (ParticipantsUpdated) Type() string { return PARTICIPANTS_UPDATED }
func (UserJoined) Type() string          { return USER_JOINED }
func (UserLeft) Type() string            { return USER_LEFT }
func (SettingsUpdated) Type() string     { return SETTINGS_UPDATED }
func (r Relay) Type() string             { return r.Kind }
func (Kicked) Type() string              { return KICKED }
func (KickSuccess) Type() string         { return KICK_SUCCESS }
func (AdminAssigned) Type() string       { return ADMIN_ASSIGNED }

func (Welcome) isResponse()             {}
func (Ack) isResponse()                 {}
func (ParticipantsUpdated) isResponse() {}
func (UserJoined) isResponse()          {}
func (UserLeft) isResponse()            {}
func (SettingsUpdated) isResponse()     {}
func (Relay) isResponse()               {}
func (Kicked) isResponse()              {}
func (KickSuccess) isResponse()         {}
func (AdminAssigned) isResponse()       {}

// Encode marshals the message with its envelope.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.Type(), err)
	}
	env := Common{Type: msg.Type(), Payload: payload}
	if ack, ok := msg.(Ack); ok {
		env.RequestID = ack.RequestID
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msg.Type(), err)
	}
	return data, nil
}

// Decode parses the payload of the given envelope by its type.
func Decode(res Common) (Message, error) {
	var (
		msg Message
		err error
	)
	switch res.Type {
	case WELCOME:
		msg, err = decode[Welcome](res.Payload)
	case ACK:
		var ack Ack
		ack, err = decode[Ack](res.Payload)
		ack.RequestID = res.RequestID
		msg = ack
	case PARTICIPANTS_UPDATED:
		msg, err = decode[ParticipantsUpdated](res.Payload)
	case USER_JOINED:
		msg, err = decode[UserJoined](res.Payload)
	case USER_LEFT:
		msg, err = decode[UserLeft](res.Payload)
	case SETTINGS_UPDATED:
		msg, err = decode[SettingsUpdated](res.Payload)
	case OFFER, ANSWER, ICE_CANDIDATE:
		var relay Relay
		relay, err = decode[Relay](res.Payload)
		relay.Kind = res.Type
		msg = relay
	case KICKED:
		msg, err = decode[Kicked](res.Payload)
	case KICK_SUCCESS:
		msg, err = decode[KickSuccess](res.Payload)
	case ADMIN_ASSIGNED:
		msg, err = decode[AdminAssigned](res.Payload)
	default:
		return nil, fmt.Errorf("%q: %w", res.Type, ErrUnknownType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", res.Type, err)
	}
	return msg, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
