package database

import "time"

// StreamSettings is the advisory quality a source streams at.
type StreamSettings struct {
	Resolution string
	FPS        int
	Bitrate    int
}

// DefaultStreamSettings is assigned to every new participant.
var DefaultStreamSettings = StreamSettings{
	Resolution: "720p",
	FPS:        30,
	Bitrate:    2000,
}

// ParticipantInfo is a struct for the membership of one connection in one room.
type ParticipantInfo struct {
	ID       string
	RoomID   string
	IsAdmin  bool
	HasVideo bool
	HasAudio bool
	Settings StreamSettings

	// Seq orders participants by insertion. It is used to pick the next admin.
	Seq      uint64
	JoinedAt time.Time
}

// UpdateStatus updates the capture flags.
func (p *ParticipantInfo) UpdateStatus(hasVideo, hasAudio bool) {
	p.HasVideo = hasVideo
	p.HasAudio = hasAudio
}

// DeepCopy creates a deep copy of the given ParticipantInfo.
func (p *ParticipantInfo) DeepCopy() *ParticipantInfo {
	return &ParticipantInfo{
		ID:       p.ID,
		RoomID:   p.RoomID,
		IsAdmin:  p.IsAdmin,
		HasVideo: p.HasVideo,
		HasAudio: p.HasAudio,
		Settings: p.Settings,
		Seq:      p.Seq,
		JoinedAt: p.JoinedAt,
	}
}
