package session

import "errors"

// Domain errors for the session manager.
var (
	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("session: manager closed")

	// ErrCommandQueueFull is returned by Submit when the command channel
	// has no free capacity.
	ErrCommandQueueFull = errors.New("session: command queue full")

	// ErrInvalidCommand is returned by Submit for a malformed command.
	ErrInvalidCommand = errors.New("session: invalid command")
)
