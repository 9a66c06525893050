package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps one message. A full snapshot of the LIDAR catalogue
// is a few kilobytes; 1MB stays under common broker limits.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker acknowledgement
// (QoS 1 and 2) or for the write to the socket (QoS 0).
//
// Snapshot, session and status topics are published retained so a
// dashboard that subscribes late sees the current state at once. Telemetry
// batches and command results are not retained.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrPublishFailed wrapping the cause
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkRoute(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s: payload is %d bytes, limit %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// Subscribe routes messages on topic (wildcards allowed) to handler.
//
// The subscription is remembered and re-established after every reconnect,
// so the command topic survives a broker restart. Handlers run on paho's
// delivery goroutine and must hand work off rather than block; the bridge
// only decodes the command and queues it on the session.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkRoute(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: %s: nil handler", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Unsubscribe stops delivery for topic. Messages already in flight may
// still reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	return await(c.client.Unsubscribe(topic), ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of remembered subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether topic (the exact pattern) is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

func checkRoute(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// await blocks until token completes or defaultPublishTimeout passes and
// wraps any failure in sentinel.
func await(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: no acknowledgement after %v", sentinel, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
