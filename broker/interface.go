package broker

// Topic groups the server messages a subscriber may be interested in.
type Topic int

// Below are the topics published by the signaling client.
const (
	// Membership carries participants-updated snapshots.
	Membership Topic = iota

	// Signal carries relayed offers, answers and ICE candidates.
	Signal

	// Control carries kicked and admin-assigned.
	Control

	// Notice carries informational messages such as user-joined and user-left.
	Notice
)

func (t Topic) String() string {
	switch t {
	case Membership:
		return "membership"
	case Signal:
		return "signal"
	case Control:
		return "control"
	case Notice:
		return "notice"
	}
	return "unknown"
}
