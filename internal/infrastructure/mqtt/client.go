package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/si3lab/lidarlink/internal/infrastructure/config"
)

// Client is the broker link used by the lidarlink bridge.
//
// It owns the {prefix}/status topic: "online" is published retained on
// every (re)connect, "offline" on Close, and the broker publishes the
// "unexpected_disconnect" will if the process dies. Paho reconnects on its
// own; the client re-subscribes every remembered topic after each
// reconnect.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected  atomic.Bool
	reconnects atomic.Uint64

	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the logging surface the client needs. *logging.Logger and
// *slog.Logger satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. A returned error is logged; it does
// not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker named in cfg and waits up to
// defaultConnectTimeout for the first connection. On failure the paho
// client is torn down so it does not keep retrying in the background.
//
// Parameters:
//   - cfg: MQTT section of the configuration
//
// Returns:
//   - *Client: Connected client with online status published
//   - error: ErrConnectionFailed wrapping the cause
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.reconnects.Add(1)
		if logger := c.getLogger(); logger != nil {
			logger.Warn("reconnecting to MQTT broker", "broker", cfg.Broker.Host, "attempt", c.reconnects.Load())
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s:%d: no answer after %v",
			ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, err)
	}

	// The connect handler runs on its own goroutine and may not have fired yet.
	c.connected.Store(true)
	return c, nil
}

// Topics returns the topic layout for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// Reconnects returns how many times paho has started a reconnect.
func (c *Client) Reconnects() uint64 {
	return c.reconnects.Load()
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	c.client.Publish(c.topics.Status(), byte(c.cfg.QoS), true, //nolint:errcheck // Fire and forget; the next connect republishes
		buildStatusPayload(c.cfg.Broker.ClientID, statusOnline, ""))

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	} else if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
}

// restoreSubscriptions runs on paho's connect goroutine and must not wait
// on tokens; failures are logged when they complete.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go func(topic string) {
			if err := await(token, ErrSubscribeFailed); err != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT resubscribe failed", "topic", topic, "error", err)
				}
			}
		}(sub.topic)
	}
}

// Close publishes the graceful offline status and disconnects. It is safe
// to call on a client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := buildStatusPayload(c.cfg.Broker.ClientID, statusOffline, reasonGraceful)
		c.client.Publish(c.topics.Status(), byte(c.cfg.QoS), true, payload).WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers a callback for the first connect and every
// reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback for connection loss. When set, it
// replaces the client's own warning log.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors and reconnects. Nil
// silences them.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs handler, logging a returned error and recovering a panic
// so one bad message cannot stop delivery.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
