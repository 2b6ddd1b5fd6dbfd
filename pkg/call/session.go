package call

import (
	"encoding/json"
	"time"
)

type State int

const (
	Idle State = iota
	Outgoing
	Incoming
	Active
	Rejected
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Active:
		return "active"
	case Rejected:
		return "rejected"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Rejected || s == Ended
}

// Session is a snapshot of one call, keyed by the peer's user id.
type Session struct {
	PeerID     int64
	PeerName   string
	PeerAvatar string
	Video      bool
	// Direction is Outgoing or Incoming.
	Direction State
	State     State
	// RemoteSignal is the peer's offer (incoming) or answer (outgoing).
	RemoteSignal json.RawMessage
	Reason       string

	StartedAt  time.Time
	AnsweredAt time.Time
	EndedAt    time.Time
}

// Duration is the connected time of an answered call.
func (s Session) Duration() time.Duration {
	if s.AnsweredAt.IsZero() {
		return 0
	}
	end := s.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.AnsweredAt)
}
