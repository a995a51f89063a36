package uplink

import (
	"encoding/json"
	"fmt"
)

// SessionState is the connection state of the uplink engine. Exactly one
// state is active at a time; Disconnected is both the initial state and the
// state every session returns to.
//
//	Disconnected -> Connecting            Start
//	Connecting   -> Connected             connect ok
//	Connecting   -> Connecting            connect failed, after backoff
//	Connected    -> Connecting            write failed or capture ended
//	any active   -> Stopping              Stop
//	any active   -> Disconnected          worker exit (stop or fatal capture error)
type SessionState int

const (
	Disconnected SessionState = iota
	Connecting
	Connected
	Stopping
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a worker is running in this state.
func (s SessionState) Active() bool {
	return s != Disconnected
}

// ParseSessionState parses the String form of a state.
func ParseSessionState(name string) (SessionState, error) {
	switch name {
	case "disconnected":
		return Disconnected, nil
	case "connecting":
		return Connecting, nil
	case "connected":
		return Connected, nil
	case "stopping":
		return Stopping, nil
	}
	return Disconnected, fmt.Errorf("uplink: unknown session state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionState) UnmarshalText(b []byte) error {
	v, err := ParseSessionState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SessionState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(name))
}
