package opcua

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
)

func TestNewDialerDefaults(t *testing.T) {
	d := NewDialer(Options{Namespace: 2})

	if d.opts.DialTimeout != defaultDialTimeout {
		t.Errorf("DialTimeout = %v, want %v", d.opts.DialTimeout, defaultDialTimeout)
	}
	if d.opts.RequestTimeout != defaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", d.opts.RequestTimeout, defaultRequestTimeout)
	}
	if len(d.opts.ControlObjects) != 2 || d.opts.ControlObjects[0] != "LIDER" || d.opts.ControlObjects[1] != "Controls" {
		t.Errorf("ControlObjects = %v, want [LIDER Controls]", d.opts.ControlObjects)
	}
}

func TestDialUnreachable(t *testing.T) {
	d := NewDialer(Options{Namespace: 2, DialTimeout: time.Second})

	_, err := d.Dial(context.Background(), "opc.tcp://127.0.0.1:1")
	if !errors.Is(err, instrument.ErrConnection) {
		t.Fatalf("Dial() error = %v, want ErrConnection", err)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr    attribute.Address
		wantErr bool
	}{
		{addr: "ns=2;s=heartbeat"},
		{addr: "ns=2;i=1001"},
		{addr: "i=85"},
		{addr: "ns=x;s=broken", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.addr), func(t *testing.T) {
			_, err := parseAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToVariant(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"bool", true, true},
		{"int32", int32(1000), int32(1000)},
		{"int widened", 7, int64(7)},
		{"double", 12.5, 12.5},
		{"string", "lidar_get_temp", "lidar_get_temp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := toVariant(tt.in)
			if err != nil {
				t.Fatalf("toVariant() error = %v", err)
			}
			if v.Value() != tt.want {
				t.Errorf("Value() = %#v, want %#v", v.Value(), tt.want)
			}
		})
	}

	if _, err := toVariant(nil); err == nil {
		t.Error("toVariant(nil) should fail")
	}
}

func TestChanges(t *testing.T) {
	handles := []attribute.Address{"ns=2;s=heartbeat", "ns=2;s=lidar_get_state"}

	n := changes(&ua.DataChangeNotification{
		MonitoredItems: []*ua.MonitoredItemNotification{
			{ClientHandle: 1, Value: &ua.DataValue{Value: ua.MustVariant(int32(4)), Status: ua.StatusOK}},
			{ClientHandle: 0, Value: &ua.DataValue{Value: ua.MustVariant(int64(9)), Status: ua.StatusOK}},
			{ClientHandle: 0, Value: &ua.DataValue{Status: ua.StatusBadNodeIDUnknown}},
			{ClientHandle: 7, Value: &ua.DataValue{Value: ua.MustVariant(true), Status: ua.StatusOK}},
			{ClientHandle: 0},
			nil,
		},
	}, handles)

	if len(n.Changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(n.Changes), n.Changes)
	}
	if n.Changes[0].Address != handles[1] || n.Changes[0].Value != int32(4) {
		t.Errorf("Changes[0] = %+v", n.Changes[0])
	}
	if n.Changes[1].Address != handles[0] || n.Changes[1].Value != int64(9) {
		t.Errorf("Changes[1] = %+v", n.Changes[1])
	}
}

func TestDataValue(t *testing.T) {
	if got := dataValue(nil); got != nil {
		t.Errorf("dataValue(nil) = %v", got)
	}
	if got := dataValue(&ua.DataValue{}); got != nil {
		t.Errorf("dataValue(empty) = %v", got)
	}
	if got := dataValue(&ua.DataValue{Value: ua.MustVariant(3.5)}); got != 3.5 {
		t.Errorf("dataValue() = %v, want 3.5", got)
	}
}
