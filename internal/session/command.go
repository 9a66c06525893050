package session

import (
	"fmt"
	"time"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
)

// CommandKind identifies what a Command does.
type CommandKind string

const (
	// CommandInvoke calls a method on the instrument's control object.
	CommandInvoke CommandKind = "invoke"

	// CommandWrite writes a setpoint node with a type hint.
	CommandWrite CommandKind = "write"

	// CommandRead reads one node by address.
	CommandRead CommandKind = "read"

	// CommandSetWindow changes the history retention window.
	CommandSetWindow CommandKind = "set-window"

	// CommandShutdown asks the process to exit.
	CommandShutdown CommandKind = "shutdown"
)

// Command is a request placed on the session's command channel by the
// console, the API or the MQTT command subscriber.
type Command struct {
	// ID identifies the command in logs and results. Submit assigns one
	// when empty.
	ID string `json:"id"`

	Kind CommandKind `json:"kind"`

	// Name is the operator-facing method or setpoint name, for logging.
	Name string `json:"name,omitempty"`

	// Address is the resolved method or node address for invoke, write
	// and read commands.
	Address attribute.Address `json:"address,omitempty"`

	// Args are the input arguments of an invoke command.
	Args []any `json:"args,omitempty"`

	// Value and Hint describe a write command.
	Value any                 `json:"value,omitempty"`
	Hint  instrument.TypeHint `json:"hint,omitempty"`

	// Minutes is the new retention window of a set-window command.
	Minutes int `json:"minutes,omitempty"`

	// Source records who issued the command (console, api, mqtt).
	Source string `json:"source,omitempty"`

	// Reply, when non-nil, receives the result. Delivery never blocks, so
	// callers should pass a channel with capacity of at least one.
	Reply chan<- Result `json:"-"`
}

// Validate checks that the command carries what its kind needs.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandInvoke, CommandWrite, CommandRead:
		if c.Address == "" {
			return fmt.Errorf("%w: %s requires an address", ErrInvalidCommand, c.Kind)
		}
	case CommandSetWindow:
		if c.Minutes < 0 {
			return fmt.Errorf("%w: negative window %d", ErrInvalidCommand, c.Minutes)
		}
	case CommandShutdown:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, c.Kind)
	}
	return nil
}

// Result is the outcome of one executed command.
type Result struct {
	ID       string        `json:"id"`
	Kind     CommandKind   `json:"kind"`
	Name     string        `json:"name,omitempty"`
	Output   []any         `json:"output,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// ErrorText returns the error text, or "" on success.
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
