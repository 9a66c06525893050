// Package instrument defines the contract between the acquisition client
// and the protocol transport that reaches the instrument.
//
// The session, acquisition and control layers depend only on these
// interfaces. The OPC UA implementation lives in
// internal/infrastructure/opcua; tests use hand-written fakes.
package instrument

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/si3lab/lidarlink/internal/attribute"
)

// TypeHint selects the wire type used when writing a setpoint.
type TypeHint int

const (
	// HintAuto lets the transport infer the wire type from the Go value.
	HintAuto TypeHint = iota
	HintBoolean
	HintInt32
	HintDouble
	HintString
)

// String returns the hint name as used in command payloads.
func (h TypeHint) String() string {
	switch h {
	case HintBoolean:
		return "Boolean"
	case HintInt32:
		return "Int32"
	case HintDouble:
		return "Double"
	case HintString:
		return "String"
	default:
		return "Auto"
	}
}

// ParseTypeHint converts a hint name (case-insensitive) to a TypeHint.
// The empty string yields HintAuto.
func ParseTypeHint(s string) (TypeHint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return HintAuto, nil
	case "boolean", "bool":
		return HintBoolean, nil
	case "int32", "int":
		return HintInt32, nil
	case "double", "float":
		return HintDouble, nil
	case "string":
		return HintString, nil
	default:
		return HintAuto, fmt.Errorf("instrument: unknown type hint %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (h TypeHint) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *TypeHint) UnmarshalText(text []byte) error {
	parsed, err := ParseTypeHint(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// DataChange is one value-change notification for one address.
type DataChange struct {
	Address attribute.Address
	Value   any
}

// Notification groups the data changes delivered by one publish response.
type Notification struct {
	Changes []DataChange
}

// Subscription is a server-side change subscription.
type Subscription interface {
	// Notifications delivers change groups until the subscription is
	// cancelled or the link fails, at which point the channel is closed.
	Notifications() <-chan Notification

	// Cancel deletes the subscription on the server. It is safe to call
	// more than once.
	Cancel(ctx context.Context) error
}

// Conn is one established session with the instrument server.
//
// Implementations must be safe for concurrent use: the prober, the
// acquisition task and command execution share the same Conn.
type Conn interface {
	// ReadOne reads the current value of a single address.
	ReadOne(ctx context.Context, addr attribute.Address) (any, error)

	// ReadMany reads all addresses in one request. The result has the
	// same length and order as addrs; entries whose read status is bad
	// are nil.
	ReadMany(ctx context.Context, addrs []attribute.Address) ([]any, error)

	// Subscribe creates a change subscription with the given publishing
	// period and monitors every address in addrs.
	Subscribe(ctx context.Context, period time.Duration, addrs []attribute.Address) (Subscription, error)

	// Call invokes a method on the instrument's control object.
	Call(ctx context.Context, method attribute.Address, args ...any) ([]any, error)

	// Write writes value to addr using the given wire type.
	Write(ctx context.Context, addr attribute.Address, value any, hint TypeHint) error

	// Close ends the session and releases the transport.
	Close(ctx context.Context) error
}

// Dialer opens sessions to an instrument server.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f(ctx, url).
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
