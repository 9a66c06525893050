package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gopcua "github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
)

// Default timeouts.
const (
	defaultDialTimeout    = 10 * time.Second
	defaultRequestTimeout = 5 * time.Second
)

// Options configures a Dialer.
type Options struct {
	// Namespace holds the instrument's control object.
	Namespace uint16

	// ControlObjects are browse names tried in order when resolving the
	// object that exposes remote methods.
	ControlObjects []string

	// DialTimeout bounds the secure channel and session setup.
	DialTimeout time.Duration

	// RequestTimeout bounds every service request.
	RequestTimeout time.Duration
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Dialer opens OPC UA sessions.
type Dialer struct {
	opts   Options
	logger Logger
}

var _ instrument.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer. Zero timeouts take the defaults.
func NewDialer(opts Options) *Dialer {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if len(opts.ControlObjects) == 0 {
		opts.ControlObjects = []string{"LIDER", "Controls"}
	}
	return &Dialer{opts: opts, logger: noopLogger{}}
}

// SetLogger sets the logger used by the dialer and its connections.
func (d *Dialer) SetLogger(logger Logger) {
	d.logger = logger
}

// Dial connects to the server at url with no security and anonymous
// authentication.
//
// Returns:
//   - instrument.Conn: Live session
//   - error: wraps instrument.ErrConnection
func (d *Dialer) Dial(ctx context.Context, url string) (instrument.Conn, error) {
	client, err := gopcua.NewClient(url,
		gopcua.SecurityMode(ua.MessageSecurityModeNone),
		gopcua.SecurityPolicy(ua.SecurityPolicyURINone),
		gopcua.AuthAnonymous(),
		gopcua.AutoReconnect(false),
		gopcua.DialTimeout(d.opts.DialTimeout),
		gopcua.RequestTimeout(d.opts.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", instrument.ErrConnection, url, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.opts.DialTimeout)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", instrument.ErrConnection, url, err)
	}

	return &conn{
		client: client,
		opts:   d.opts,
		logger: d.logger,
	}, nil
}

// conn is one client session.
type conn struct {
	client *gopcua.Client
	opts   Options
	logger Logger

	mu      sync.Mutex
	control *ua.NodeID
}

var _ instrument.Conn = (*conn)(nil)

// ReadOne implements instrument.Conn.
func (c *conn) ReadOne(ctx context.Context, addr attribute.Address) (any, error) {
	nodeID, err := parseAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", instrument.ErrProtocolRead, err)
	}

	resp, err := c.client.Read(ctx, &ua.ReadRequest{
		NodesToRead:        []*ua.ReadValueID{{NodeID: nodeID, AttributeID: ua.AttributeIDValue}},
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", instrument.ErrProtocolRead, addr, err)
	}
	if len(resp.Results) != 1 {
		return nil, fmt.Errorf("%w: %s: %d results", instrument.ErrProtocolRead, addr, len(resp.Results))
	}
	result := resp.Results[0]
	if result.Status != ua.StatusOK {
		return nil, fmt.Errorf("%w: %s: %w", instrument.ErrProtocolRead, addr, result.Status)
	}
	return dataValue(result), nil
}

// ReadMany implements instrument.Conn.
func (c *conn) ReadMany(ctx context.Context, addrs []attribute.Address) ([]any, error) {
	nodes := make([]*ua.ReadValueID, len(addrs))
	for i, addr := range addrs {
		nodeID, err := parseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", instrument.ErrProtocolRead, err)
		}
		nodes[i] = &ua.ReadValueID{NodeID: nodeID, AttributeID: ua.AttributeIDValue}
	}

	resp, err := c.client.Read(ctx, &ua.ReadRequest{
		NodesToRead:        nodes,
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: batch of %d: %w", instrument.ErrProtocolRead, len(addrs), err)
	}
	if len(resp.Results) != len(addrs) {
		return nil, fmt.Errorf("%w: asked for %d values, got %d",
			instrument.ErrProtocolRead, len(addrs), len(resp.Results))
	}

	out := make([]any, len(addrs))
	for i, result := range resp.Results {
		if result == nil || result.Status != ua.StatusOK {
			continue
		}
		out[i] = dataValue(result)
	}
	return out, nil
}

// Subscribe implements instrument.Conn.
func (c *conn) Subscribe(ctx context.Context, period time.Duration, addrs []attribute.Address) (instrument.Subscription, error) {
	items := make([]*ua.MonitoredItemCreateRequest, len(addrs))
	for i, addr := range addrs {
		nodeID, err := parseAddress(addr)
		if err != nil {
			return nil, err
		}
		// The client handle is the address index.
		items[i] = gopcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, uint32(i))
	}

	in := make(chan *gopcua.PublishNotificationData, 64)
	sub, err := c.client.Subscribe(ctx, &gopcua.SubscriptionParameters{Interval: period}, in)
	if err != nil {
		return nil, fmt.Errorf("%w: create subscription: %w", instrument.ErrConnection, err)
	}

	resp, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, items...)
	if err != nil {
		_ = sub.Cancel(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: monitor %d items: %w", instrument.ErrConnection, len(items), err)
	}

	monitored := 0
	for i, r := range resp.Results {
		if r.StatusCode != ua.StatusOK {
			c.logger.Warn("monitored item rejected", "address", addrs[i], "status", r.StatusCode)
			continue
		}
		monitored++
	}
	if monitored == 0 && len(items) > 0 {
		_ = sub.Cancel(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: server rejected every monitored item", instrument.ErrConnection)
	}

	s := newSubscription(sub, in, addrs, c.logger)
	go s.forward()
	return s, nil
}

// Call implements instrument.Conn.
func (c *conn) Call(ctx context.Context, method attribute.Address, args ...any) ([]any, error) {
	objectID, err := c.controlObject(ctx)
	if err != nil {
		return nil, err
	}
	methodID, err := parseAddress(method)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", instrument.ErrProtocolWrite, err)
	}

	inputs := make([]*ua.Variant, len(args))
	for i, a := range args {
		v, err := toVariant(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %d: %w", instrument.ErrProtocolWrite, method, i, err)
		}
		inputs[i] = v
	}

	result, err := c.client.Call(ctx, &ua.CallMethodRequest{
		ObjectID:       objectID,
		MethodID:       methodID,
		InputArguments: inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %w", instrument.ErrProtocolWrite, method, err)
	}
	if result.StatusCode != ua.StatusOK {
		return nil, fmt.Errorf("%w: call %s: %w", instrument.ErrProtocolWrite, method, result.StatusCode)
	}

	out := make([]any, len(result.OutputArguments))
	for i, v := range result.OutputArguments {
		if v != nil {
			out[i] = v.Value()
		}
	}
	return out, nil
}

// Write implements instrument.Conn.
func (c *conn) Write(ctx context.Context, addr attribute.Address, value any, hint instrument.TypeHint) error {
	nodeID, err := parseAddress(addr)
	if err != nil {
		return fmt.Errorf("%w: %w", instrument.ErrProtocolWrite, err)
	}
	coerced, err := instrument.Coerce(value, hint)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", instrument.ErrProtocolWrite, addr, err)
	}
	v, err := toVariant(coerced)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", instrument.ErrProtocolWrite, addr, err)
	}

	resp, err := c.client.Write(ctx, &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      nodeID,
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        v,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", instrument.ErrProtocolWrite, addr, err)
	}
	if len(resp.Results) == 1 && resp.Results[0] != ua.StatusOK {
		return fmt.Errorf("%w: %s: %w", instrument.ErrProtocolWrite, addr, resp.Results[0])
	}
	return nil
}

// Close implements instrument.Conn.
func (c *conn) Close(ctx context.Context) error {
	if err := c.client.Close(ctx); err != nil {
		return fmt.Errorf("%w: close session: %w", instrument.ErrTeardown, err)
	}
	return nil
}

// controlObject resolves and caches the node that owns the remote methods.
func (c *conn) controlObject(ctx context.Context) (*ua.NodeID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.control != nil {
		return c.control, nil
	}

	objects := c.client.Node(ua.NewNumericNodeID(0, id.ObjectsFolder))
	var errs []error
	for _, name := range c.opts.ControlObjects {
		nodeID, err := objects.TranslateBrowsePathInNamespaceToNodeID(ctx, c.opts.Namespace, name)
		if err == nil {
			c.logger.Debug("control object resolved", "browse_name", name, "node", nodeID.String())
			c.control = nodeID
			return nodeID, nil
		}
		errs = append(errs, fmt.Errorf("%d:%s: %w", c.opts.Namespace, name, err))
	}
	return nil, fmt.Errorf("%w: no control object among %s: %w",
		instrument.ErrProtocolWrite, strings.Join(c.opts.ControlObjects, ", "), errors.Join(errs...))
}

func parseAddress(addr attribute.Address) (*ua.NodeID, error) {
	nodeID, err := ua.ParseNodeID(string(addr))
	if err != nil {
		return nil, fmt.Errorf("invalid node id %q: %w", addr, err)
	}
	return nodeID, nil
}
