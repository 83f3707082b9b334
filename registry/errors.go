package registry

import (
	"errors"
	"fmt"
)

// Below are the protocol errors returned to the caller. They are never broadcast.
var (
	ErrNotFound        = errors.New("room not found")
	ErrAlreadyExists   = errors.New("room already exists")
	ErrBadCredentials  = errors.New("incorrect password")
	ErrUnauthorized    = errors.New("not authorized")
	ErrAlreadyInRoom   = errors.New("already in another room")
	ErrInvalidArgument = errors.New("invalid argument")
)

var reasons = []error{
	ErrNotFound,
	ErrAlreadyExists,
	ErrBadCredentials,
	ErrUnauthorized,
	ErrAlreadyInRoom,
	ErrInvalidArgument,
}

// Error records the failed operation and the room it was applied to.
type Error struct {
	Op     string
	RoomID string
	Err    error
}

func (e *Error) Error() string {
	if e.RoomID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.RoomID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, roomID string, err error) error {
	return &Error{Op: op, RoomID: roomID, Err: err}
}

// Reason maps an error to the message shown to clients. Errors outside the
// protocol set are reported as internal.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r) {
			return r.Error()
		}
	}
	return "internal error"
}
