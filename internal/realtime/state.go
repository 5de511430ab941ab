package realtime

// ConnState is the channel's connection state.
//
//	Disconnected → Connecting → Connected → (Disconnected | ReAuthenticating)
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReAuthenticating
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReAuthenticating:
		return "reauthenticating"
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
