package transport

// ConnState is the push-channel lifecycle state. Transitions are owned by
// the channel's run loop; callers observe them via StateFunc callbacks and
// the store's connection flag.
type ConnState int

const (
	// StateDisconnected is the initial state and the state after a clean
	// Close.
	StateDisconnected ConnState = iota
	// StateConnecting covers the dial and subscription handshake.
	StateConnecting
	// StateConnected means the channel is established and subscriptions
	// are registered.
	StateConnected
	// StateReauthenticating means a REST 401 is being repaired by a token
	// refresh before the channel retries.
	StateReauthenticating
	// StateFailed is terminal: the retry budget is exhausted and no
	// further automatic attempts happen until Connect is called again.
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReauthenticating:
		return "reauthenticating"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateFunc observes channel state transitions.
type StateFunc func(from, to ConnState)
