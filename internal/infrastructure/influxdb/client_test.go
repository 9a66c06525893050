package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/si3lab/lidarlink/internal/infrastructure/config"
	"github.com/si3lab/lidarlink/internal/infrastructure/influxdb"
	"github.com/si3lab/lidarlink/internal/session"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

// fakeInflux answers pings and records line protocol bodies.
type fakeInflux struct {
	mu        sync.Mutex
	lines     []string
	writeCode int
	server    *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{writeCode: http.StatusNoContent}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"name":"influxdb","status":"pass","message":"ready"}`)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			code := f.writeCode
			if code == http.StatusNoContent {
				for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
					if line != "" {
						f.lines = append(f.lines, line)
					}
				}
			}
			f.mu.Unlock()
			if code != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(code)
				_, _ = io.WriteString(w, `{"code":"invalid","message":"rejected by test"}`)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.server.URL,
		Token:         "lidarlink-test-token",
		Org:           "si3",
		Bucket:        "lidar",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func waitForLines(t *testing.T, f *fakeInflux, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		lines := f.written()
		if len(lines) >= n {
			return lines
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d lines, want %d: %v", len(lines), n, lines)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.Enabled = false

	client, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() should return nil client when disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1", Bucket: "lidar"}

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Cancelled(t *testing.T) {
	f := newFakeInflux(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := influxdb.Connect(ctx, f.config()); err == nil {
		t.Error("Connect() with cancelled context should fail")
	}
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// No-ops once closed.
	client.Flush()
	client.Consume(telemetry.Batch{Samples: []telemetry.Sample{{Attribute: "HEARTBEAT", Value: 1}}})
	if points, _ := client.Stats(); points != 0 {
		t.Errorf("points = %d after Close, want 0", points)
	}
}

func TestNilClient(t *testing.T) {
	var client *influxdb.Client
	if client.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestConsume(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	ts := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	client.Consume(telemetry.Batch{
		Source:     telemetry.SourcePoll,
		CapturedAt: ts,
		Samples: []telemetry.Sample{
			{Attribute: "HEARTBEAT", Value: int32(7), Timestamp: ts},
			{Attribute: "LASER_ENABLED", Value: true, Timestamp: ts},
			{Attribute: "LIDAR_ID", Value: "si3-01", Timestamp: ts},
			{Attribute: "TEMP", Value: nil, Timestamp: ts},
		},
	})
	client.Flush()

	lines := waitForLines(t, f, 3)
	want := []string{
		"lidar,attribute=HEARTBEAT,source=poll value=7 ",
		"lidar,attribute=LASER_ENABLED,source=poll flag=true ",
		`lidar,attribute=LIDAR_ID,source=poll text="si3-01" `,
	}
	for i, prefix := range want {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], prefix)
		}
		if !strings.HasSuffix(lines[i], " 1792400400000000000") {
			t.Errorf("line %d = %q, want sample timestamp", i, lines[i])
		}
	}

	points, skipped := client.Stats()
	if points != 3 || skipped != 1 {
		t.Errorf("Stats() = %d, %d, want 3, 1", points, skipped)
	}
}

func TestConsume_CustomMeasurementAndBatchTime(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.Measurement = "lidar_lab"
	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.Consume(telemetry.Batch{
		Source:     telemetry.SourcePush,
		CapturedAt: time.Unix(1700000000, 0),
		Samples:    []telemetry.Sample{{Attribute: "AZIMUTH", Value: 12.5}},
	})
	client.Flush()

	line := waitForLines(t, f, 1)[0]
	if line != "lidar_lab,attribute=AZIMUTH,source=push value=12.5 1700000000000000000" {
		t.Errorf("line = %q", line)
	}
}

func TestObserveTransition(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.ObserveTransition(session.Transition{
		From: session.StateConnected,
		To:   session.StateDisconnected,
		Err:  errors.New("probe failed"),
		At:   time.Unix(1700000000, 0),
	})
	client.Flush()

	line := waitForLines(t, f, 1)[0]
	for _, part := range []string{
		"lidar_session,state=disconnected ",
		"connected=false",
		`reason="probe failed"`,
		"code=0i",
	} {
		if !strings.Contains(line, part) {
			t.Errorf("line %q missing %q", line, part)
		}
	}
}

func TestSetOnError_CallbackInvoked(t *testing.T) {
	f := newFakeInflux(t)
	f.mu.Lock()
	f.writeCode = http.StatusBadRequest
	f.mu.Unlock()
	client := connect(t, f)

	errCh := make(chan error, 10)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	client.WritePoint("lidar", map[string]string{"attribute": "HEARTBEAT"}, map[string]any{"value": 1.0}, time.Time{})
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("write error callback not invoked")
	}
}
