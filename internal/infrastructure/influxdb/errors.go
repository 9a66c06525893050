package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: exporter disabled")

	// ErrConnectionFailed is returned when the server does not answer the
	// startup ping.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps errors reported asynchronously by the batching
	// writer. They reach the SetOnError callback, never a caller.
	ErrWriteFailed = errors.New("influxdb: batch write rejected")
)
