//go:build integration

package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/si3lab/lidarlink/internal/infrastructure/config"
)

// Integration tests against a live broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	cfg.TopicPrefix = "lidarlink-it"
	return cfg
}

func connect(t *testing.T, clientID string) *Client {
	t.Helper()
	client, err := Connect(integrationConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connect(t, "lidarlink-it-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig("lidarlink-it-refused")
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_CloseMarksDisconnected(t *testing.T) {
	client, err := Connect(integrationConfig("lidarlink-it-close"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connect(t, "lidarlink-it-sub-track")
	topic := client.Topics().Command()

	if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) || client.SubscriptionCount() != 1 {
		t.Errorf("subscription not tracked")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topic) {
		t.Error("subscription still tracked after Unsubscribe()")
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub := connect(t, "lidarlink-it-pub")
	sub := connect(t, "lidarlink-it-sub")

	topic := sub.Topics().Command()
	expected := `{"kind":"invoke","name":"ServFixed"}`

	received := make(chan string, 1)
	var once sync.Once
	err := sub.Subscribe(topic, 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("Received = %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

func TestIntegration_RetainedStatus(t *testing.T) {
	pub := connect(t, "lidarlink-it-status")
	sub := connect(t, "lidarlink-it-status-watch")

	statuses := make(chan StatusMessage, 4)
	err := sub.Subscribe(sub.Topics().Status(), 1, func(_ string, p []byte) error {
		var msg StatusMessage
		if err := json.Unmarshal(p, &msg); err != nil {
			return err
		}
		if msg.ClientID == "lidarlink-it-status" {
			statuses <- msg
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-statuses:
		if msg.Status != statusOnline {
			t.Errorf("status = %q, want online", msg.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no retained status received")
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case msg := <-statuses:
		if msg.Status != statusOffline || msg.Reason != reasonGraceful {
			t.Errorf("status after Close = %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no offline status received")
	}
}

func TestIntegration_CallbacksRegistered(t *testing.T) {
	client := connect(t, "lidarlink-it-callbacks")

	var connects, disconnects atomic.Int32
	client.SetOnConnect(func() { connects.Add(1) })
	client.SetOnDisconnect(func(error) { disconnects.Add(1) })

	client.SetOnConnect(nil)
	client.SetOnDisconnect(nil)
}
