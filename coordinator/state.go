package coordinator

// State is the negotiation state of a session.
type State int

const (
	Idle State = iota
	OfferSent
	OfferReceived
	Connected
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OfferSent:
		return "offer_sent"
	case OfferReceived:
		return "offer_received"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Role is the negotiation direction of the local side of a session.
type Role int

const (
	// Initiator sends offers. The room admin initiates toward every source.
	Initiator Role = iota
	// Responder answers offers from the room admin.
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}
