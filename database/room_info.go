package database

import (
	"crypto/subtle"
	"time"
)

// RoomInfo is a struct for room information.
type RoomInfo struct {
	ID        string
	Name      string
	Password  string
	AdminID   string
	CreatedAt time.Time
}

// Authenticate checks the given password against the room password.
func (r *RoomInfo) Authenticate(password string) bool {
	return subtle.ConstantTimeCompare([]byte(r.Password), []byte(password)) == 1
}

// IsAdmin returns whether the connection currently holds the admin role.
func (r *RoomInfo) IsAdmin(connectionID string) bool {
	return r.AdminID != "" && r.AdminID == connectionID
}

// DeepCopy creates a deep copy of the given RoomInfo.
func (r *RoomInfo) DeepCopy() *RoomInfo {
	return &RoomInfo{
		ID:        r.ID,
		Name:      r.Name,
		Password:  r.Password,
		AdminID:   r.AdminID,
		CreatedAt: r.CreatedAt,
	}
}
