package realtime

// State is the lifecycle of the client's single connection.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingAuth
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingAuth:
		return "awaiting_auth"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// live reports whether a transport is being held or established for this state.
func (s State) live() bool {
	return s == Connecting || s == AwaitingAuth || s == Authenticated
}
