package control

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
	"github.com/si3lab/lidarlink/internal/session"
)

func TestInvoke(t *testing.T) {
	c := New(2, 60)

	tests := []struct {
		name     string
		method   string
		args     []any
		wantArgs []any
		wantErr  error
	}{
		{name: "no args", method: "ServFixed", wantArgs: []any{}},
		{name: "case insensitive", method: "servrandom", wantArgs: []any{}},
		{name: "integer from text", method: "update_time", args: []any{"5"}, wantArgs: []any{int64(5)}},
		{name: "integer from json number", method: "update_time", args: []any{float64(2)}, wantArgs: []any{int64(2)}},
		{name: "fractional integer", method: "update_time", args: []any{1.5}, wantErr: ErrInvalidArgument},
		{name: "not an integer", method: "update_time", args: []any{"soon"}, wantErr: ErrInvalidArgument},
		{
			name:     "auto converted value",
			method:   "change_fix_val",
			args:     []any{"lidar_get_temp", "21.5"},
			wantArgs: []any{"lidar_get_temp", 21.5},
		},
		{
			name:     "auto converted bool",
			method:   "change_fix_val",
			args:     []any{"lidar_get_laser_on", "true"},
			wantArgs: []any{"lidar_get_laser_on", true},
		},
		{name: "wrong arity", method: "ServFixed", args: []any{"x"}, wantErr: ErrInvalidArgument},
		{name: "unknown method", method: "Reboot", wantErr: ErrUnknownMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := c.Invoke(tt.method, tt.args...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Invoke() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if cmd.Kind != session.CommandInvoke {
				t.Errorf("Kind = %q, want invoke", cmd.Kind)
			}
			m, _ := c.Method(tt.method)
			if want := attribute.Address("ns=2;s=" + m.Name); cmd.Address != want {
				t.Errorf("Address = %q, want %q", cmd.Address, want)
			}
			if len(cmd.Args) != len(tt.wantArgs) {
				t.Fatalf("Args = %v, want %v", cmd.Args, tt.wantArgs)
			}
			for i := range cmd.Args {
				if cmd.Args[i] != tt.wantArgs[i] {
					t.Errorf("Args[%d] = %#v, want %#v", i, cmd.Args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestWrite(t *testing.T) {
	c := New(3, 60)

	tests := []struct {
		name      string
		setpoint  string
		value     any
		wantNode  string
		wantValue any
		wantHint  instrument.TypeHint
		wantErr   error
	}{
		{
			name: "boolean by full name", setpoint: "lidar_set_laser_enable", value: "true",
			wantNode: "lidar_set_laser_enable", wantValue: true, wantHint: instrument.HintBoolean,
		},
		{
			name: "int32 by short name", setpoint: "set_laser_prf", value: "1000",
			wantNode: "lidar_set_laser_prf", wantValue: int32(1000), wantHint: instrument.HintInt32,
		},
		{
			name: "double", setpoint: "LIDAR_SET_TARGET_AZ", value: 12.5,
			wantNode: "lidar_set_target_az", wantValue: 12.5, wantHint: instrument.HintDouble,
		},
		{
			name: "mode node", setpoint: "go_online", value: true,
			wantNode: "lidar_go_online", wantValue: true, wantHint: instrument.HintBoolean,
		},
		{name: "bad value", setpoint: "set_laser_prf", value: "fast", wantErr: ErrInvalidArgument},
		{name: "unknown", setpoint: "set_warp_drive", value: true, wantErr: ErrUnknownSetpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := c.Write(tt.setpoint, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Write() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if cmd.Kind != session.CommandWrite {
				t.Errorf("Kind = %q, want write", cmd.Kind)
			}
			if want := attribute.Address("ns=3;s=" + tt.wantNode); cmd.Address != want {
				t.Errorf("Address = %q, want %q", cmd.Address, want)
			}
			if cmd.Value != tt.wantValue {
				t.Errorf("Value = %#v, want %#v", cmd.Value, tt.wantValue)
			}
			if cmd.Hint != tt.wantHint {
				t.Errorf("Hint = %v, want %v", cmd.Hint, tt.wantHint)
			}
		})
	}
}

func TestSetpointCatalogue(t *testing.T) {
	c := New(2, 60)

	counts := map[Category]int{}
	for _, s := range c.Setpoints() {
		counts[s.Category]++
	}
	if counts[CategorySetter] != 16 || counts[CategoryCmd] != 7 || counts[CategoryMode] != 4 {
		t.Errorf("category counts = %v, want setter:16 cmd:7 mode:4", counts)
	}
	if got := len(c.Methods()); got != 5 {
		t.Errorf("len(Methods()) = %d, want 5", got)
	}
}

func TestSetpointLookup(t *testing.T) {
	c := New(2, 60)

	tests := []struct {
		name     string
		wantNode string
		wantOK   bool
	}{
		{name: "lidar_set_laser_prf", wantNode: "lidar_set_laser_prf", wantOK: true},
		{name: "set_laser_prf", wantNode: "lidar_set_laser_prf", wantOK: true},
		{name: "  SET_Laser_Enable ", wantNode: "lidar_set_laser_enable", wantOK: true},
		{name: "go_maintenace", wantNode: "lidar_go_maintenace", wantOK: true},
		{name: "laser_prf"},
		{name: "lidar_laser_prf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := c.Setpoint(tt.name)
			if ok != tt.wantOK {
				t.Fatalf("Setpoint(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			}
			if ok && s.Node != tt.wantNode {
				t.Errorf("Setpoint(%q).Node = %q, want %q", tt.name, s.Node, tt.wantNode)
			}
		})
	}

	if _, err := c.Write("laser_prf", "1000"); !errors.Is(err, ErrUnknownSetpoint) {
		t.Errorf("Write(laser_prf) error = %v, want ErrUnknownSetpoint", err)
	}
}

func TestMethodsJSONRoundTrip(t *testing.T) {
	c := New(2, 60)

	data, err := json.Marshal(c.Methods())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded []Method
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, m := range decoded {
		if m.Name != "update_time" {
			continue
		}
		if len(m.Params) != 1 || m.Params[0].Kind != ArgInteger {
			t.Errorf("update_time params = %+v, want one integer", m.Params)
		}
		return
	}
	t.Error("update_time missing from decoded methods")
}

func TestArgKindUnmarshalText(t *testing.T) {
	tests := []struct {
		text    string
		want    ArgKind
		wantErr bool
	}{
		{text: "auto", want: ArgAuto},
		{text: "integer", want: ArgInteger},
		{text: "String", want: ArgString},
		{text: "float", wantErr: true},
	}
	for _, tt := range tests {
		var k ArgKind
		err := k.UnmarshalText([]byte(tt.text))
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("UnmarshalText(%q) error = %v, want ErrInvalidArgument", tt.text, err)
			}
			continue
		}
		if err != nil || k != tt.want {
			t.Errorf("UnmarshalText(%q) = %v, %v; want %v", tt.text, k, err, tt.want)
		}
	}
}

func TestSetWindow(t *testing.T) {
	c := New(2, 60)

	for _, minutes := range []int{1, 30, 60} {
		cmd, err := c.SetWindow(minutes)
		if err != nil {
			t.Errorf("SetWindow(%d) error = %v", minutes, err)
			continue
		}
		if cmd.Kind != session.CommandSetWindow || cmd.Minutes != minutes {
			t.Errorf("SetWindow(%d) = %+v", minutes, cmd)
		}
	}
	for _, minutes := range []int{0, -5, 61} {
		if _, err := c.SetWindow(minutes); !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("SetWindow(%d) error = %v, want ErrInvalidWindow", minutes, err)
		}
	}
}

func TestRead(t *testing.T) {
	c := New(2, 60)

	cmd, err := c.Read("lidar_get_state")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cmd.Kind != session.CommandRead || cmd.Address != "ns=2;s=lidar_get_state" {
		t.Errorf("Read() = %+v", cmd)
	}
	if _, err := c.Read("  "); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Read(blank) error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuild(t *testing.T) {
	c := New(2, 60)

	tests := []struct {
		name    string
		req     Request
		want    session.CommandKind
		wantErr error
	}{
		{name: "invoke", req: Request{Kind: session.CommandInvoke, Name: "ServFixed"}, want: session.CommandInvoke},
		{name: "write", req: Request{Kind: session.CommandWrite, Name: "set_hv_enable", Value: false}, want: session.CommandWrite},
		{name: "write without value", req: Request{Kind: session.CommandWrite, Name: "set_hv_enable"}, wantErr: ErrInvalidArgument},
		{name: "read", req: Request{Kind: session.CommandRead, Name: "heartbeat"}, want: session.CommandRead},
		{name: "window", req: Request{Kind: session.CommandSetWindow, Minutes: 5}, want: session.CommandSetWindow},
		{name: "shutdown", req: Request{Kind: session.CommandShutdown}, want: session.CommandShutdown},
		{name: "unknown", req: Request{Kind: "reboot"}, wantErr: ErrUnknownRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := c.Build(tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Build() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if cmd.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", cmd.Kind, tt.want)
			}
			if err := cmd.Validate(); err != nil {
				t.Errorf("built command does not validate: %v", err)
			}
		})
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Request
		wantErr error
	}{
		{line: "invoke ServFixed", want: Request{Kind: session.CommandInvoke, Name: "ServFixed", Args: []any{}}},
		{line: "call update_time 3", want: Request{Kind: session.CommandInvoke, Name: "update_time", Args: []any{"3"}}},
		{line: "write set_laser_prf 1000", want: Request{Kind: session.CommandWrite, Name: "set_laser_prf", Value: "1000"}},
		{line: "  read   lidar_get_state ", want: Request{Kind: session.CommandRead, Name: "lidar_get_state"}},
		{line: "window 15", want: Request{Kind: session.CommandSetWindow, Minutes: 15}},
		{line: "QUIT", want: Request{Kind: session.CommandShutdown}},
		{line: "window soon", wantErr: ErrInvalidArgument},
		{line: "write set_laser_prf", wantErr: ErrInvalidArgument},
		{line: "invoke", wantErr: ErrInvalidArgument},
		{line: "dance", wantErr: ErrUnknownRequest},
		{line: "", wantErr: ErrUnknownRequest},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseLine() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine() error = %v", err)
			}
			if got.Kind != tt.want.Kind || got.Name != tt.want.Name ||
				got.Value != tt.want.Value || got.Minutes != tt.want.Minutes ||
				len(got.Args) != len(tt.want.Args) {
				t.Errorf("ParseLine() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
