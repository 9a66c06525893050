package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/si3lab/lidarlink/internal/session"
)

// Request is the wire form of an operator command, as posted to the API
// or published on the MQTT command topic.
type Request struct {
	Kind    session.CommandKind `json:"kind"`
	Name    string              `json:"name,omitempty"`
	Args    []any               `json:"args,omitempty"`
	Value   any                 `json:"value,omitempty"`
	Minutes int                 `json:"minutes,omitempty"`
}

// Build resolves a request into a session command.
func (c *Catalogue) Build(req Request) (session.Command, error) {
	switch req.Kind {
	case session.CommandInvoke:
		return c.Invoke(req.Name, req.Args...)
	case session.CommandWrite:
		if req.Value == nil {
			return session.Command{}, fmt.Errorf("%w: write %s needs a value", ErrInvalidArgument, req.Name)
		}
		return c.Write(req.Name, req.Value)
	case session.CommandRead:
		return c.Read(req.Name)
	case session.CommandSetWindow:
		return c.SetWindow(req.Minutes)
	case session.CommandShutdown:
		return c.Shutdown(), nil
	default:
		return session.Command{}, fmt.Errorf("%w: %q", ErrUnknownRequest, req.Kind)
	}
}

// ParseLine parses one console line into a request.
//
// Accepted forms:
//
//	invoke <method> [args...]
//	write <setpoint> <value>
//	read <node>
//	window <minutes>
//	quit
func ParseLine(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{}, fmt.Errorf("%w: empty line", ErrUnknownRequest)
	}

	verb := strings.ToLower(fields[0])
	rest := fields[1:]

	switch verb {
	case "invoke", "call":
		if len(rest) == 0 {
			return Request{}, fmt.Errorf("%w: usage: invoke <method> [args...]", ErrInvalidArgument)
		}
		args := make([]any, 0, len(rest)-1)
		for _, a := range rest[1:] {
			args = append(args, a)
		}
		return Request{Kind: session.CommandInvoke, Name: rest[0], Args: args}, nil

	case "write", "set":
		if len(rest) != 2 {
			return Request{}, fmt.Errorf("%w: usage: write <setpoint> <value>", ErrInvalidArgument)
		}
		return Request{Kind: session.CommandWrite, Name: rest[0], Value: rest[1]}, nil

	case "read", "get":
		if len(rest) != 1 {
			return Request{}, fmt.Errorf("%w: usage: read <node>", ErrInvalidArgument)
		}
		return Request{Kind: session.CommandRead, Name: rest[0]}, nil

	case "window", "set-window":
		if len(rest) != 1 {
			return Request{}, fmt.Errorf("%w: usage: window <minutes>", ErrInvalidArgument)
		}
		minutes, err := strconv.Atoi(rest[0])
		if err != nil {
			return Request{}, fmt.Errorf("%w: %q is not a number of minutes", ErrInvalidArgument, rest[0])
		}
		return Request{Kind: session.CommandSetWindow, Minutes: minutes}, nil

	case "quit", "exit", "shutdown":
		return Request{Kind: session.CommandShutdown}, nil

	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownRequest, verb)
	}
}
