package transport

// State represents the lifecycle phase of one logical caption connection,
// independent of the underlying transport mechanism. Exactly one value holds
// at any time.
type State int

const (
	// StateDisconnected is the initial state, and the terminal state after a
	// manual disconnect.
	StateDisconnected State = iota

	// StateConnecting means a physical connection attempt is in flight (or
	// scheduled behind the startup grace period).
	StateConnecting

	// StateConnected means the socket is open and delivering messages.
	StateConnected

	// StateReconnecting means the connection dropped and a retry timer is
	// pending.
	StateReconnecting

	// StateFailed is the terminal state after the retry budget is exhausted.
	// The client never leaves it; callers must construct a new client to
	// resume.
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
