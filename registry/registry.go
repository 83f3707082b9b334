// Package registry is the authoritative store of rooms, their members and the
// admin role. It is not safe for concurrent use; callers serialize access
// through a single event loop.
package registry

import (
	"errors"
	"fmt"
	"log/slog"

	"roomcast/database"
	"roomcast/types/client/request"
	"roomcast/types/client/response"
)

// Registry applies membership operations to the database and notifies the
// affected connections.
type Registry struct {
	db       database.Database
	notifier Notifier
	logger   *slog.Logger
}

// JoinResult is returned by a successful create or join.
type JoinResult struct {
	RoomID       string
	IsAdmin      bool
	Participants []response.Participant
}

// New creates a new instance of Registry.
func New(db database.Database, n Notifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		db:       db,
		notifier: n,
		logger:   logger,
	}
}

// CreateRoom creates a room whose only participant and admin is the creator.
func (r *Registry) CreateRoom(roomID, name, password, creatorID string) (JoinResult, error) {
	const op = "create-room"
	if roomID == "" || creatorID == "" {
		return JoinResult{}, newError(op, roomID, ErrInvalidArgument)
	}
	if _, err := r.db.FindRoomInfoByID(roomID); err == nil {
		return JoinResult{}, newError(op, roomID, ErrAlreadyExists)
	}
	if err := r.ensureNotElsewhere(roomID, creatorID); err != nil {
		return JoinResult{}, newError(op, roomID, err)
	}

	if _, err := r.db.CreateRoomInfo(roomID, name, password, creatorID); err != nil {
		if errors.Is(err, database.ErrRoomAlreadyExists) {
			return JoinResult{}, newError(op, roomID, ErrAlreadyExists)
		}
		return JoinResult{}, newError(op, roomID, err)
	}
	if _, err := r.db.CreateParticipantInfo(roomID, creatorID, true); err != nil {
		if delErr := r.db.DeleteRoomInfoByID(roomID); delErr != nil {
			r.logger.Error("failed to roll back room", "room", roomID, "error", delErr)
		}
		return JoinResult{}, newError(op, roomID, err)
	}

	participants, err := r.participants(roomID)
	if err != nil {
		return JoinResult{}, newError(op, roomID, err)
	}
	r.logger.Info("room created", "room", roomID, "admin", creatorID)
	r.broadcast(roomID, participants, response.ParticipantsUpdated{RoomID: roomID, Participants: participants}, "")
	return JoinResult{RoomID: roomID, IsAdmin: true, Participants: participants}, nil
}

// JoinRoom adds the connection to the room. The current admin re-joins without
// a password check. Joining a room the connection is already in is a no-op
// apart from the fresh snapshot.
func (r *Registry) JoinRoom(roomID, password, connectionID string) (JoinResult, error) {
	const op = "join-room"
	if roomID == "" || connectionID == "" {
		return JoinResult{}, newError(op, roomID, ErrInvalidArgument)
	}
	room, err := r.db.FindRoomInfoByID(roomID)
	if err != nil {
		return JoinResult{}, newError(op, roomID, ErrNotFound)
	}
	if err := r.ensureNotElsewhere(roomID, connectionID); err != nil {
		return JoinResult{}, newError(op, roomID, err)
	}
	if !room.IsAdmin(connectionID) && !room.Authenticate(password) {
		return JoinResult{}, newError(op, roomID, ErrBadCredentials)
	}

	_, err = r.db.FindParticipantInfoByID(roomID, connectionID)
	isNew := errors.Is(err, database.ErrParticipantNotFound)
	if err != nil && !isNew {
		return JoinResult{}, newError(op, roomID, err)
	}

	var joined *database.ParticipantInfo
	if isNew {
		joined, err = r.db.CreateParticipantInfo(roomID, connectionID, false)
		if err != nil {
			return JoinResult{}, newError(op, roomID, err)
		}
	}

	participants, err := r.participants(roomID)
	if err != nil {
		return JoinResult{}, newError(op, roomID, err)
	}
	if joined != nil {
		r.logger.Info("participant joined", "room", roomID, "participant", connectionID)
		r.broadcast(roomID, participants, response.UserJoined{
			RoomID:      roomID,
			Participant: toParticipant(joined),
		}, connectionID)
	}
	r.broadcast(roomID, participants, response.ParticipantsUpdated{RoomID: roomID, Participants: participants}, "")
	return JoinResult{RoomID: roomID, IsAdmin: room.IsAdmin(connectionID), Participants: participants}, nil
}

// UpdateStreamStatus updates the capture flags of the caller. Unknown rooms
// and participants are ignored.
func (r *Registry) UpdateStreamStatus(roomID, connectionID string, hasVideo, hasAudio bool) error {
	roomID = r.resolve(roomID, connectionID)
	info, err := r.db.FindParticipantInfoByID(roomID, connectionID)
	if err != nil {
		return nil
	}
	info.UpdateStatus(hasVideo, hasAudio)
	if _, err := r.db.UpdateParticipantInfo(info); err != nil {
		return newError("update-stream-status", roomID, err)
	}

	participants, err := r.participants(roomID)
	if err != nil {
		return newError("update-stream-status", roomID, err)
	}
	r.broadcast(roomID, participants, response.ParticipantsUpdated{RoomID: roomID, Participants: participants}, "")
	return nil
}

// UpdateStreamSettings merges the given settings into the caller's and informs
// the admin. Unknown rooms and participants are ignored.
func (r *Registry) UpdateStreamSettings(connectionID string, req request.UpdateStreamSettings) error {
	const op = "update-stream-settings"
	roomID := r.resolve(req.RoomID, connectionID)
	info, err := r.db.FindParticipantInfoByID(roomID, connectionID)
	if err != nil {
		return nil
	}
	if req.Resolution != nil {
		info.Settings.Resolution = *req.Resolution
	}
	if req.FPS != nil {
		if *req.FPS <= 0 {
			return newError(op, roomID, fmt.Errorf("fps %d: %w", *req.FPS, ErrInvalidArgument))
		}
		info.Settings.FPS = *req.FPS
	}
	if req.Bitrate != nil {
		if *req.Bitrate <= 0 {
			return newError(op, roomID, fmt.Errorf("bitrate %d: %w", *req.Bitrate, ErrInvalidArgument))
		}
		info.Settings.Bitrate = *req.Bitrate
	}
	updated, err := r.db.UpdateParticipantInfo(info)
	if err != nil {
		return newError(op, roomID, err)
	}

	room, err := r.db.FindRoomInfoByID(roomID)
	if err != nil {
		return newError(op, roomID, err)
	}
	r.notifier.Notify(room.AdminID, response.SettingsUpdated{
		RoomID:        roomID,
		ParticipantID: connectionID,
		Settings:      toSettings(updated.Settings),
	})
	return nil
}

// Kick removes targetID from the room. Only the admin may kick, and not itself.
func (r *Registry) Kick(roomID, requesterID, targetID string) error {
	const op = "kick-user"
	roomID = r.resolve(roomID, requesterID)
	room, err := r.db.FindRoomInfoByID(roomID)
	if err != nil {
		return newError(op, roomID, ErrNotFound)
	}
	if !room.IsAdmin(requesterID) {
		return newError(op, roomID, ErrUnauthorized)
	}
	if targetID == requesterID {
		return newError(op, roomID, fmt.Errorf("admin cannot kick itself: %w", ErrInvalidArgument))
	}
	if _, err := r.db.FindParticipantInfoByID(roomID, targetID); err != nil {
		return newError(op, roomID, fmt.Errorf("participant %s: %w", targetID, ErrNotFound))
	}
	if err := r.db.DeleteParticipantInfoByID(roomID, targetID); err != nil {
		return newError(op, roomID, err)
	}
	r.logger.Info("participant kicked", "room", roomID, "participant", targetID, "by", requesterID)

	r.notifier.Notify(targetID, response.Kicked{RoomID: roomID})
	r.notifier.Notify(requesterID, response.KickSuccess{RoomID: roomID, TargetID: targetID})
	return r.announceDeparture(room, targetID)
}

// Leave removes the connection from the room, hands over the admin role when
// needed and deletes the room once it is empty.
func (r *Registry) Leave(roomID, connectionID string) error {
	const op = "leave-room"
	roomID = r.resolve(roomID, connectionID)
	room, err := r.db.FindRoomInfoByID(roomID)
	if err != nil {
		return newError(op, roomID, ErrNotFound)
	}
	if _, err := r.db.FindParticipantInfoByID(roomID, connectionID); err != nil {
		return newError(op, roomID, fmt.Errorf("participant %s: %w", connectionID, ErrNotFound))
	}
	if err := r.db.DeleteParticipantInfoByID(roomID, connectionID); err != nil {
		return newError(op, roomID, err)
	}
	r.logger.Info("participant left", "room", roomID, "participant", connectionID)
	return r.announceDeparture(room, connectionID)
}

// Disconnect applies Leave to every room the connection is a member of.
func (r *Registry) Disconnect(connectionID string) {
	memberships, err := r.db.FindParticipantInfosByConnection(connectionID)
	if err != nil {
		r.logger.Error("failed to find memberships", "connection", connectionID, "error", err)
		return
	}
	for _, m := range memberships {
		if err := r.Leave(m.RoomID, connectionID); err != nil {
			r.logger.Error("failed to leave room on disconnect", "room", m.RoomID, "connection", connectionID, "error", err)
		}
	}
}

// RoomInfo returns the room details to one of its members.
func (r *Registry) RoomInfo(roomID, connectionID string) (response.RoomInfo, error) {
	const op = "get-room-info"
	roomID = r.resolve(roomID, connectionID)
	room, err := r.db.FindRoomInfoByID(roomID)
	if err != nil {
		return response.RoomInfo{}, newError(op, roomID, ErrNotFound)
	}
	if _, err := r.db.FindParticipantInfoByID(roomID, connectionID); err != nil {
		return response.RoomInfo{}, newError(op, roomID, ErrUnauthorized)
	}
	participants, err := r.participants(roomID)
	if err != nil {
		return response.RoomInfo{}, newError(op, roomID, err)
	}
	return response.RoomInfo{
		ID:           room.ID,
		Name:         room.Name,
		IsAdmin:      room.IsAdmin(connectionID),
		Participants: participants,
	}, nil
}

// Relay forwards an offer, answer or ICE candidate to a peer that shares a
// room with the sender. It returns the room the signal was relayed in.
func (r *Registry) Relay(fromID string, msg request.Relay) (string, error) {
	if !request.IsRelay(msg.Kind) || msg.TargetID == "" || msg.TargetID == fromID {
		return "", newError(msg.Kind, msg.RoomID, ErrInvalidArgument)
	}

	roomID := msg.RoomID
	if roomID == "" {
		roomID = r.sharedRoom(fromID, msg.TargetID)
		if roomID == "" {
			return "", newError(msg.Kind, "", fmt.Errorf("no room shared with %s: %w", msg.TargetID, ErrNotFound))
		}
	} else {
		if _, err := r.db.FindRoomInfoByID(roomID); err != nil {
			return "", newError(msg.Kind, roomID, ErrNotFound)
		}
		if !r.isMember(roomID, fromID) || !r.isMember(roomID, msg.TargetID) {
			return "", newError(msg.Kind, roomID, ErrUnauthorized)
		}
	}

	r.notifier.Notify(msg.TargetID, response.Relay{
		Kind:    msg.Kind,
		FromID:  fromID,
		RoomID:  roomID,
		Payload: msg.Payload,
	})
	return roomID, nil
}

// Stats returns the number of live rooms and participants.
func (r *Registry) Stats() (int, int) {
	rooms, participants, err := r.db.Count()
	if err != nil {
		r.logger.Error("failed to count rooms", "error", err)
		return 0, 0
	}
	return rooms, participants
}

// announceDeparture runs after departedID was removed from room.
func (r *Registry) announceDeparture(room *database.RoomInfo, departedID string) error {
	remaining, err := r.db.FindParticipantInfosByRoom(room.ID)
	if err != nil {
		return newError("leave-room", room.ID, err)
	}
	if len(remaining) == 0 {
		if err := r.db.DeleteRoomInfoByID(room.ID); err != nil {
			return newError("leave-room", room.ID, err)
		}
		r.logger.Info("room deleted", "room", room.ID)
		return nil
	}

	if room.IsAdmin(departedID) {
		successor, err := r.promoteSuccessor(room.ID, remaining)
		if err != nil {
			return newError("leave-room", room.ID, err)
		}
		r.logger.Info("admin reassigned", "room", room.ID, "admin", successor.ID)
		r.notifier.Notify(successor.ID, response.AdminAssigned{RoomID: room.ID})
	}

	participants, err := r.participants(room.ID)
	if err != nil {
		return newError("leave-room", room.ID, err)
	}
	r.broadcast(room.ID, participants, response.UserLeft{RoomID: room.ID, ParticipantID: departedID}, "")
	r.broadcast(room.ID, participants, response.ParticipantsUpdated{RoomID: room.ID, Participants: participants}, "")
	return nil
}

// resolve returns roomID, or the only room of the connection when roomID is empty.
func (r *Registry) resolve(roomID, connectionID string) string {
	if roomID != "" {
		return roomID
	}
	memberships, err := r.db.FindParticipantInfosByConnection(connectionID)
	if err != nil || len(memberships) == 0 {
		return ""
	}
	return memberships[0].RoomID
}

// ensureNotElsewhere enforces one room per connection.
func (r *Registry) ensureNotElsewhere(roomID, connectionID string) error {
	memberships, err := r.db.FindParticipantInfosByConnection(connectionID)
	if err != nil {
		return err
	}
	for _, m := range memberships {
		if m.RoomID != roomID {
			return fmt.Errorf("member of %s: %w", m.RoomID, ErrAlreadyInRoom)
		}
	}
	return nil
}

func (r *Registry) sharedRoom(a, b string) string {
	memberships, err := r.db.FindParticipantInfosByConnection(a)
	if err != nil {
		return ""
	}
	for _, m := range memberships {
		if r.isMember(m.RoomID, b) {
			return m.RoomID
		}
	}
	return ""
}

func (r *Registry) isMember(roomID, connectionID string) bool {
	_, err := r.db.FindParticipantInfoByID(roomID, connectionID)
	return err == nil
}

func (r *Registry) participants(roomID string) ([]response.Participant, error) {
	infos, err := r.db.FindParticipantInfosByRoom(roomID)
	if err != nil {
		return nil, err
	}
	participants := make([]response.Participant, 0, len(infos))
	for _, info := range infos {
		participants = append(participants, toParticipant(info))
	}
	return participants, nil
}

// broadcast sends msg to every participant except the given one.
func (r *Registry) broadcast(roomID string, participants []response.Participant, msg response.Message, except string) {
	for _, p := range participants {
		if p.ID == except {
			continue
		}
		r.notifier.Notify(p.ID, msg)
	}
	r.logger.Debug("broadcast", "room", roomID, "type", msg.Type(), "receivers", len(participants))
}

func toParticipant(info *database.ParticipantInfo) response.Participant {
	return response.Participant{
		ID:             info.ID,
		IsAdmin:        info.IsAdmin,
		HasVideo:       info.HasVideo,
		HasAudio:       info.HasAudio,
		StreamSettings: toSettings(info.Settings),
	}
}

func toSettings(s database.StreamSettings) response.StreamSettings {
	return response.StreamSettings{
		Resolution: s.Resolution,
		FPS:        s.FPS,
		Bitrate:    s.Bitrate,
	}
}
