package bridge

import "errors"

// Domain errors for the MQTT bridge.
var (
	// ErrInvalidMessage is returned when a command payload cannot be decoded.
	ErrInvalidMessage = errors.New("bridge: invalid command message")

	// ErrCommandsDisabled is returned when a command arrives while the
	// bridge only publishes.
	ErrCommandsDisabled = errors.New("bridge: remote commands are disabled")
)
