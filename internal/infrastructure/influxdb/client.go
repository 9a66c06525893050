package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/si3lab/lidarlink/internal/infrastructure/config"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize   = 100
	defaultMeasurement = "lidar"

	// millisecondsPerSecond converts seconds to milliseconds for the InfluxDB API.
	millisecondsPerSecond = 1000
)

// Client exports instrument telemetry to an InfluxDB v2 bucket.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Write operations are non-blocking and batched.
type Client struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPI
	cfg         config.InfluxDBConfig
	measurement string

	// connected tracks current connection state.
	connected bool
	mu        sync.RWMutex

	// onError is called when async write errors occur.
	onError func(err error)

	points  atomic.Uint64
	skipped atomic.Uint64
}

// Connect pings the server and starts the batching writer. Points are
// buffered and sent every cfg.BatchSize points or cfg.FlushInterval
// seconds, whichever comes first.
//
// Parameters:
//   - ctx: Bounds the startup ping together with defaultConnectTimeout
//   - cfg: InfluxDB section of the configuration
//
// Returns:
//   - *Client: Connected exporter
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !healthy:
		client.Close()
		return nil, fmt.Errorf("%w: %s: ping not answered with 204", ErrConnectionFailed, cfg.URL)
	}

	measurement := cfg.Measurement
	if measurement == "" {
		measurement = defaultMeasurement
	}
	c := &Client{
		client:      client,
		writeAPI:    client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:         cfg,
		measurement: measurement,
		connected:   true,
	}
	go c.handleWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// writeOptions maps the batch settings onto the client options, filling
// in defaults for unset values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batchSize := defaultBatchSize
	if cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}
	flushSeconds := 1
	if cfg.FlushInterval > 0 {
		flushSeconds = cfg.FlushInterval
	}

	// #nosec G115 -- both values are positive
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(flushSeconds) * millisecondsPerSecond)
}

// handleWriteErrors forwards async write errors from the WriteAPI.
func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close flushes buffered points and closes the client. It is safe on a
// nil client and idempotent.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if !wasConnected {
		return nil
	}

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	return nil
}

// IsConnected reports whether the exporter is open. It does not ping; use
// HealthCheck for that. The /system links use this.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets a callback to be invoked when async write errors occur.
// Errors passed to it wrap ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush sends buffered points now. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Stats reports how many points were queued and how many samples were
// skipped because their value could not be exported.
func (c *Client) Stats() (points, skipped uint64) {
	return c.points.Load(), c.skipped.Load()
}
