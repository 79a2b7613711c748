package realtime

// ConnState describes the bus connection lifecycle.
type ConnState int

// Connection states, in rough lifecycle order. StateError means the last
// connection attempt failed; the paho client keeps retrying in the
// background, so an errored bus can still recover to StateConnected.
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the lowercase name of the connection state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
