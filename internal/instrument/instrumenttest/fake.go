// Package instrumenttest provides in-memory fakes of the instrument
// interfaces for use in tests.
package instrumenttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
)

// Write records one call to Conn.Write.
type Write struct {
	Address attribute.Address
	Value   any
	Hint    instrument.TypeHint
}

// Call records one call to Conn.Call.
type Call struct {
	Method attribute.Address
	Args   []any
}

// Conn is a scriptable in-memory instrument.Conn.
type Conn struct {
	mu sync.Mutex

	values       map[attribute.Address]any
	readErr      error
	subscribeErr error
	callErr      error
	callResult   []any
	closeErr     error

	readOneCalls  int
	readManyCalls int
	readManyHook  func()
	writes        []Write
	calls         []Call
	subs          []*Subscription
	closed        bool
}

var _ instrument.Conn = (*Conn)(nil)

// NewConn creates a connection serving the given address values.
func NewConn(values map[attribute.Address]any) *Conn {
	c := &Conn{values: make(map[attribute.Address]any, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// SetValue changes the value served for addr.
func (c *Conn) SetValue(addr attribute.Address, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[addr] = v
}

// SetReadErr makes every subsequent read fail with err (nil restores reads).
func (c *Conn) SetReadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// SetSubscribeErr makes Subscribe fail with err.
func (c *Conn) SetSubscribeErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

// SetCallResult scripts the outcome of Call.
func (c *Conn) SetCallResult(out []any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callResult = out
	c.callErr = err
}

// SetCloseErr makes Close fail with err.
func (c *Conn) SetCloseErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
}

// OnReadMany registers a hook run at the start of every ReadMany.
func (c *Conn) OnReadMany(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readManyHook = fn
}

// ReadOne implements instrument.Conn.
func (c *Conn) ReadOne(ctx context.Context, addr attribute.Address) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readOneCalls++
	if c.closed {
		return nil, instrument.ErrNotConnected
	}
	if c.readErr != nil {
		return nil, fmt.Errorf("%w: %w", instrument.ErrProtocolRead, c.readErr)
	}
	v, ok := c.values[addr]
	if !ok {
		return nil, fmt.Errorf("%w: unknown node %s", instrument.ErrProtocolRead, addr)
	}
	return v, nil
}

// ReadMany implements instrument.Conn.
func (c *Conn) ReadMany(ctx context.Context, addrs []attribute.Address) ([]any, error) {
	c.mu.Lock()
	hook := c.readManyHook
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.readManyCalls++
	if c.closed {
		return nil, instrument.ErrNotConnected
	}
	if c.readErr != nil {
		return nil, fmt.Errorf("%w: %w", instrument.ErrProtocolRead, c.readErr)
	}
	out := make([]any, len(addrs))
	for i, a := range addrs {
		out[i] = c.values[a]
	}
	return out, nil
}

// Subscribe implements instrument.Conn.
func (c *Conn) Subscribe(ctx context.Context, period time.Duration, addrs []attribute.Address) (instrument.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	sub := &Subscription{
		Period:    period,
		Addresses: append([]attribute.Address(nil), addrs...),
		ch:        make(chan instrument.Notification, 16),
	}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// Call implements instrument.Conn.
func (c *Conn) Call(ctx context.Context, method attribute.Address, args ...any) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{Method: method, Args: args})
	return c.callResult, c.callErr
}

// Write implements instrument.Conn.
func (c *Conn) Write(ctx context.Context, addr attribute.Address, value any, hint instrument.TypeHint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return instrument.ErrNotConnected
	}
	c.writes = append(c.writes, Write{Address: addr, Value: value, Hint: hint})
	c.values[addr] = value
	return nil
}

// Close implements instrument.Conn.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return c.closeErr
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ReadOneCount returns the number of ReadOne calls.
func (c *Conn) ReadOneCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOneCalls
}

// ReadManyCount returns the number of ReadMany calls.
func (c *Conn) ReadManyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readManyCalls
}

// Writes returns the recorded writes.
func (c *Conn) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

// Calls returns the recorded method calls.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Subscriptions returns every subscription created on this connection.
func (c *Conn) Subscriptions() []*Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Subscription(nil), c.subs...)
}

// Subscription is an in-memory instrument.Subscription.
type Subscription struct {
	Period    time.Duration
	Addresses []attribute.Address

	mu        sync.Mutex
	ch        chan instrument.Notification
	cancelled bool
	closed    bool
	cancelErr error
}

var _ instrument.Subscription = (*Subscription)(nil)

// Notifications implements instrument.Subscription.
func (s *Subscription) Notifications() <-chan instrument.Notification {
	return s.ch
}

// Push delivers one notification. It is a no-op once the stream is closed.
func (s *Subscription) Push(changes ...instrument.DataChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- instrument.Notification{Changes: changes}
}

// Fail closes the notification stream as a dropped link would.
func (s *Subscription) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// SetCancelErr makes Cancel fail with err.
func (s *Subscription) SetCancelErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelErr = err
}

// Cancel implements instrument.Subscription.
func (s *Subscription) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return s.cancelErr
}

// Cancelled reports whether Cancel was called.
func (s *Subscription) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Dialer is a scriptable instrument.Dialer.
type Dialer struct {
	mu      sync.Mutex
	err     error
	newConn func() *Conn
	conns   []*Conn
	dials   []time.Time
}

var _ instrument.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer that hands out a fresh Conn from newConn on
// every successful Dial.
func NewDialer(newConn func() *Conn) *Dialer {
	return &Dialer{newConn: newConn}
}

// SetErr makes subsequent dials fail with err (nil restores success).
func (d *Dialer) SetErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dial implements instrument.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (instrument.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, time.Now())
	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", instrument.ErrConnection, d.err)
	}
	c := d.newConn()
	d.conns = append(d.conns, c)
	return c, nil
}

// Dials returns the time of every Dial call, successful or not.
func (d *Dialer) Dials() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.dials...)
}

// Conns returns every connection handed out.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Last returns the most recent connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
