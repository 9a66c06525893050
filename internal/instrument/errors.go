package instrument

import "errors"

// Error taxonomy shared by every layer that talks to the instrument.
var (
	// ErrConnection is returned when the server is unreachable, refuses the
	// session, or the link drops during an operation.
	ErrConnection = errors.New("instrument: connection failed")

	// ErrProtocolRead is returned when a read or call request fails on an
	// established link.
	ErrProtocolRead = errors.New("instrument: protocol read failed")

	// ErrProtocolWrite is returned when a setpoint write is rejected.
	ErrProtocolWrite = errors.New("instrument: protocol write failed")

	// ErrTeardown is returned when deleting a subscription or closing the
	// transport fails. It is logged and never propagated past a disconnect.
	ErrTeardown = errors.New("instrument: teardown failed")

	// ErrNotConnected is returned when an operation needs a live connection
	// and none is held.
	ErrNotConnected = errors.New("instrument: not connected")
)
