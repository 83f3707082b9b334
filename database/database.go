// Package database provides an interface for database operations.
package database

import (
	"errors"
)

var (
	// ErrRoomAlreadyExists is returned when the room already exists.
	ErrRoomAlreadyExists = errors.New("room already exists")

	// ErrParticipantAlreadyExists is returned when the participant already exists.
	ErrParticipantAlreadyExists = errors.New("participant already exists")

	// ErrRoomNotFound is returned when the room is not found.
	ErrRoomNotFound = errors.New("room not found")

	// ErrParticipantNotFound is returned when the participant is not found.
	ErrParticipantNotFound = errors.New("participant not found")
)

// Database is an interface for database operations.
type Database interface {
	CreateRoomInfo(id, name, password, adminID string) (*RoomInfo, error)
	FindRoomInfoByID(id string) (*RoomInfo, error)
	FindAllRoomInfos() ([]*RoomInfo, error)
	DeleteRoomInfoByID(id string) error

	CreateParticipantInfo(roomID, id string, isAdmin bool) (*ParticipantInfo, error)
	FindParticipantInfoByID(roomID, id string) (*ParticipantInfo, error)
	FindParticipantInfosByRoom(roomID string) ([]*ParticipantInfo, error)
	FindParticipantInfosByConnection(id string) ([]*ParticipantInfo, error)
	UpdateParticipantInfo(info *ParticipantInfo) (*ParticipantInfo, error)
	PromoteParticipantInfo(roomID, id string) (*ParticipantInfo, error)
	DeleteParticipantInfoByID(roomID, id string) error

	Count() (rooms int, participants int, err error)
}
