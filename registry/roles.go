package registry

import (
	"fmt"

	"roomcast/database"
)

// promoteSuccessor hands the admin role to the earliest inserted of the
// remaining participants, which are sorted by insertion.
func (r *Registry) promoteSuccessor(roomID string, remaining []*database.ParticipantInfo) (*database.ParticipantInfo, error) {
	next := remaining[0]
	promoted, err := r.db.PromoteParticipantInfo(roomID, next.ID)
	if err != nil {
		return nil, fmt.Errorf("promote %s: %w", next.ID, err)
	}
	return promoted, nil
}

// CheckInvariants reports the first room that is empty, lacks an admin, has
// more than one, or whose admin record disagrees with its members.
func (r *Registry) CheckInvariants() error {
	rooms, err := r.db.FindAllRoomInfos()
	if err != nil {
		return err
	}
	for _, room := range rooms {
		members, err := r.db.FindParticipantInfosByRoom(room.ID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return fmt.Errorf("room %s has no participants", room.ID)
		}
		admins := 0
		for _, m := range members {
			if !m.IsAdmin {
				continue
			}
			admins++
			if m.ID != room.AdminID {
				return fmt.Errorf("room %s: admin flag on %s but room admin is %s", room.ID, m.ID, room.AdminID)
			}
		}
		if admins != 1 {
			return fmt.Errorf("room %s has %d admins", room.ID, admins)
		}
	}
	return nil
}
