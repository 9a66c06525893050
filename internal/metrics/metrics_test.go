package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/si3lab/lidarlink/internal/history"
	"github.com/si3lab/lidarlink/internal/session"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

func TestObserveTransition(t *testing.T) {
	m := New()

	m.ObserveTransition(session.Transition{From: session.StateDisconnected, To: session.StateConnecting})
	m.ObserveTransition(session.Transition{From: session.StateConnecting, To: session.StateConnected})

	if got := testutil.ToFloat64(m.SessionState); got != float64(session.StateConnected) {
		t.Errorf("session state = %v, want %v", got, float64(session.StateConnected))
	}

	m.ObserveTransition(session.Transition{
		From: session.StateConnected,
		To:   session.StateDisconnected,
		Err:  errors.New("liveness probe: timeout"),
	})
	if got := testutil.ToFloat64(m.LinkLosses); got != 1 {
		t.Errorf("link losses = %v, want 1", got)
	}

	// An operator disconnect is not a loss.
	m.ObserveTransition(session.Transition{From: session.StateConnected, To: session.StateDisconnected})
	if got := testutil.ToFloat64(m.LinkLosses); got != 1 {
		t.Errorf("link losses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StateTransitions.WithLabelValues("disconnected")); got != 2 {
		t.Errorf("transitions to disconnected = %v, want 2", got)
	}
}

func TestConsume(t *testing.T) {
	m := New()
	now := time.Now()

	m.Consume(telemetry.Batch{Source: telemetry.SourcePoll, CapturedAt: now, Samples: []telemetry.Sample{
		{Attribute: "HEARTBEAT", Value: int64(1), Timestamp: now},
		{Attribute: "STATE", Value: int64(2), Timestamp: now},
	}})
	m.Consume(telemetry.Batch{Source: telemetry.SourcePoll, CapturedAt: now, Samples: []telemetry.Sample{
		{Attribute: "HEARTBEAT", Value: int64(2), Timestamp: now},
	}})

	if got := testutil.ToFloat64(m.Batches.WithLabelValues(telemetry.SourcePoll)); got != 2 {
		t.Errorf("batches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Samples.WithLabelValues(telemetry.SourcePoll)); got != 3 {
		t.Errorf("samples = %v, want 3", got)
	}
}

func TestObserveCommand(t *testing.T) {
	m := New()

	m.ObserveCommand(session.Command{Kind: session.CommandInvoke}, session.Result{Duration: time.Millisecond})
	m.ObserveCommand(session.Command{Kind: session.CommandInvoke}, session.Result{Err: errors.New("BadMethodInvalid")})

	if got := testutil.ToFloat64(m.Commands.WithLabelValues("invoke", "ok")); got != 1 {
		t.Errorf("ok invokes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Commands.WithLabelValues("invoke", "error")); got != 1 {
		t.Errorf("failed invokes = %v, want 1", got)
	}
}

func TestHandlerExposesHistory(t *testing.T) {
	m := New()
	store, err := history.New(10)
	if err != nil {
		t.Fatalf("history.New() error = %v", err)
	}
	store.Append("HEARTBEAT", int64(1), time.Time{})
	store.Append("HEARTBEAT", int64(2), time.Time{})
	m.RegisterHistory(store)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"lidarlink_history_points 2",
		"lidarlink_history_series 1",
		"lidarlink_history_retention_seconds 600",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
