package session

import (
	"fmt"
	"strings"
	"time"
)

// State is the connection lifecycle state of a Manager.
type State int

const (
	// StateDisconnected means no session is held. The supervisor retries
	// after the reconnect backoff.
	StateDisconnected State = iota

	// StateConnecting means a dial and acquisition start are in flight.
	StateConnecting

	// StateConnected means the session is live and one acquisition task runs.
	StateConnected

	// StateClosing is terminal: Close was called and no further
	// connection attempts are made.
	StateClosing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so states render as names
// in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState converts a state name back to a State.
func ParseState(name string) (State, error) {
	for _, s := range []State{StateDisconnected, StateConnecting, StateConnected, StateClosing} {
		if strings.EqualFold(strings.TrimSpace(name), s.String()) {
			return s, nil
		}
	}
	return StateDisconnected, fmt.Errorf("session: unknown state %q", name)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Transition describes one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	Err  error     `json:"-"`
	At   time.Time `json:"at"`
}

// Reason returns the error text that caused the transition, if any.
func (t Transition) Reason() string {
	if t.Err == nil {
		return ""
	}
	return t.Err.Error()
}
