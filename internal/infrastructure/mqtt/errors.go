package mqtt

import "errors"

// Sentinel errors. Check with errors.Is.
var (
	// ErrNotConnected is returned while the broker link is down.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned when Connect cannot reach the broker.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
