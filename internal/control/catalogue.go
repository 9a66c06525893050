// Package control describes what an operator can do to the instrument:
// the server-side methods of its control object and the writable
// setpoint, command and mode nodes. It turns operator requests into
// session commands.
package control

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
	"github.com/si3lab/lidarlink/internal/session"
)

// ArgKind describes how a method argument is converted before the call.
type ArgKind int

const (
	// ArgAuto converts text with instrument.AutoConvert and passes other
	// values through.
	ArgAuto ArgKind = iota

	// ArgInteger requires an integral value and sends it as int64.
	ArgInteger

	// ArgString sends the value's text form.
	ArgString
)

// MarshalText implements encoding.TextMarshaler.
func (k ArgKind) MarshalText() ([]byte, error) {
	switch k {
	case ArgInteger:
		return []byte("integer"), nil
	case ArgString:
		return []byte("string"), nil
	default:
		return []byte("auto"), nil
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ArgKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "auto", "":
		*k = ArgAuto
	case "integer", "int":
		*k = ArgInteger
	case "string", "str":
		*k = ArgString
	default:
		return fmt.Errorf("%w: unknown argument kind %q", ErrInvalidArgument, text)
	}
	return nil
}

// Param is one method input argument.
type Param struct {
	Name string  `json:"name"`
	Kind ArgKind `json:"kind"`
}

// Method is a callable method of the control object.
type Method struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params,omitempty"`
}

// Category groups writable nodes the way the instrument ICD does.
type Category string

const (
	CategorySetter Category = "setter"
	CategoryCmd    Category = "cmd"
	CategoryMode   Category = "mode"
)

// Setpoint is a writable node and the wire type it is written with.
type Setpoint struct {
	Node     string              `json:"node"`
	Hint     instrument.TypeHint `json:"type"`
	Category Category            `json:"category"`
}

var methods = []Method{
	{Name: "ServFixed", Description: "switch the server to fixed values"},
	{Name: "ServRandom", Description: "switch the server to random values"},
	{Name: "ServOutOfRange", Description: "switch the server to out-of-range values"},
	{Name: "update_time", Description: "change the server update period", Params: []Param{
		{Name: "heartbeat", Kind: ArgInteger},
	}},
	{Name: "change_fix_val", Description: "change the fixed value of one node", Params: []Param{
		{Name: "node_name", Kind: ArgString},
		{Name: "value", Kind: ArgAuto},
	}},
}

var setpoints = []Setpoint{
	{Node: "lidar_set_laser_enable", Hint: instrument.HintBoolean, Category: CategorySetter},
	{Node: "lidar_set_hv_enable", Hint: instrument.HintBoolean, Category: CategorySetter},
	{Node: "lidar_set_laser_prf", Hint: instrument.HintInt32, Category: CategorySetter},
	{Node: "lidar_set_target_az", Hint: instrument.HintDouble, Category: CategorySetter},
	{Node: "lidar_set_target_el", Hint: instrument.HintDouble, Category: CategorySetter},
	{Node: "lidar_set_scan_speed_az", Hint: instrument.HintDouble, Category: CategorySetter},
	{Node: "lidar_set_scan_speed_el", Hint: instrument.HintDouble, Category: CategorySetter},
	{Node: "lidar_set_scan_mode_select", Hint: instrument.HintInt32, Category: CategorySetter},
	{Node: "lidar_set_bin_width", Hint: instrument.HintDouble, Category: CategorySetter},
	{Node: "lidar_set_accumulation_pulses", Hint: instrument.HintInt32, Category: CategorySetter},
	{Node: "lidar_set_raster_width", Hint: instrument.HintDouble, Category: CategorySetter},
	{Node: "lidar_set_raster_height", Hint: instrument.HintDouble, Category: CategorySetter},
	{Node: "lidar_set_cone_angle", Hint: instrument.HintDouble, Category: CategorySetter},
	{Node: "lidar_set_cmd_home", Hint: instrument.HintBoolean, Category: CategorySetter},
	{Node: "lidar_set_cmd_park", Hint: instrument.HintBoolean, Category: CategorySetter},
	{Node: "lidar_set_start_acquisition", Hint: instrument.HintBoolean, Category: CategorySetter},

	{Node: "lidar_updatestop", Hint: instrument.HintBoolean, Category: CategoryCmd},
	{Node: "lidar_updateresume", Hint: instrument.HintBoolean, Category: CategoryCmd},
	{Node: "lidar_simul_on", Hint: instrument.HintBoolean, Category: CategoryCmd},
	{Node: "lidar_simul_off", Hint: instrument.HintBoolean, Category: CategoryCmd},
	{Node: "lidar_servershutdown", Hint: instrument.HintBoolean, Category: CategoryCmd},
	{Node: "lidar_error_info", Hint: instrument.HintBoolean, Category: CategoryCmd},
	{Node: "lidar_error_reset", Hint: instrument.HintBoolean, Category: CategoryCmd},

	{Node: "lidar_go_loaded", Hint: instrument.HintBoolean, Category: CategoryMode},
	{Node: "lidar_go_standby", Hint: instrument.HintBoolean, Category: CategoryMode},
	{Node: "lidar_go_online", Hint: instrument.HintBoolean, Category: CategoryMode},
	// The server exposes the node with this spelling.
	{Node: "lidar_go_maintenace", Hint: instrument.HintBoolean, Category: CategoryMode},
}

// Catalogue resolves operator requests against the instrument's methods
// and writable nodes in one namespace.
type Catalogue struct {
	namespace    int
	maxRetention int
	methods      map[string]Method
	setpoints    map[string]Setpoint
}

// New creates a catalogue for nodes in the given namespace. maxRetention
// is the largest accepted history window in minutes.
func New(namespace, maxRetention int) *Catalogue {
	c := &Catalogue{
		namespace:    namespace,
		maxRetention: maxRetention,
		methods:      make(map[string]Method, len(methods)),
		setpoints:    make(map[string]Setpoint, len(setpoints)*2),
	}
	for _, m := range methods {
		c.methods[strings.ToLower(m.Name)] = m
	}
	for _, s := range setpoints {
		c.setpoints[s.Node] = s
		c.setpoints[strings.TrimPrefix(s.Node, "lidar_")] = s
	}
	return c
}

// MaxRetention returns the largest accepted history window in minutes.
func (c *Catalogue) MaxRetention() int {
	return c.maxRetention
}

// Address returns the node address of a string identifier.
func (c *Catalogue) Address(identifier string) attribute.Address {
	return attribute.Address(fmt.Sprintf("ns=%d;s=%s", c.namespace, identifier))
}

// Methods returns every method sorted by name.
func (c *Catalogue) Methods() []Method {
	out := append([]Method(nil), methods...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Setpoints returns every writable node in catalogue order.
func (c *Catalogue) Setpoints() []Setpoint {
	return append([]Setpoint(nil), setpoints...)
}

// Method looks up a method by name, case-insensitively.
func (c *Catalogue) Method(name string) (Method, bool) {
	m, ok := c.methods[strings.ToLower(strings.TrimSpace(name))]
	return m, ok
}

// Setpoint looks up a writable node by its full name or without the
// "lidar_" prefix, case-insensitively.
func (c *Catalogue) Setpoint(name string) (Setpoint, bool) {
	s, ok := c.setpoints[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Invoke builds a method call command. Arguments are converted according
// to the method's parameter kinds.
//
// Returns:
//   - session.Command: ready for Manager.Submit
//   - error: ErrUnknownMethod or ErrInvalidArgument
func (c *Catalogue) Invoke(name string, args ...any) (session.Command, error) {
	m, ok := c.Method(name)
	if !ok {
		return session.Command{}, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	if len(args) != len(m.Params) {
		return session.Command{}, fmt.Errorf("%w: %s takes %d argument(s), got %d",
			ErrInvalidArgument, m.Name, len(m.Params), len(args))
	}

	converted := make([]any, len(args))
	for i, p := range m.Params {
		v, err := convertArg(args[i], p.Kind)
		if err != nil {
			return session.Command{}, fmt.Errorf("%w: %s %s: %w", ErrInvalidArgument, m.Name, p.Name, err)
		}
		converted[i] = v
	}

	return session.Command{
		Kind:    session.CommandInvoke,
		Name:    m.Name,
		Address: c.Address(m.Name),
		Args:    converted,
	}, nil
}

// Write builds a setpoint write command. The value is validated against
// the node's wire type here so bad input is rejected before it is queued.
func (c *Catalogue) Write(name string, value any) (session.Command, error) {
	s, ok := c.Setpoint(name)
	if !ok {
		return session.Command{}, fmt.Errorf("%w: %q", ErrUnknownSetpoint, name)
	}
	v, err := instrument.Coerce(value, s.Hint)
	if err != nil {
		return session.Command{}, fmt.Errorf("%w: %s: %w", ErrInvalidArgument, s.Node, err)
	}
	return session.Command{
		Kind:    session.CommandWrite,
		Name:    s.Node,
		Address: c.Address(s.Node),
		Value:   v,
		Hint:    s.Hint,
	}, nil
}

// Read builds a command that reads any node by its string identifier.
func (c *Catalogue) Read(node string) (session.Command, error) {
	node = strings.TrimSpace(node)
	if node == "" {
		return session.Command{}, fmt.Errorf("%w: empty node name", ErrInvalidArgument)
	}
	return session.Command{
		Kind:    session.CommandRead,
		Name:    node,
		Address: c.Address(node),
	}, nil
}

// SetWindow builds a history window command. minutes must be between 1
// and the configured maximum.
func (c *Catalogue) SetWindow(minutes int) (session.Command, error) {
	if minutes < 1 || (c.maxRetention > 0 && minutes > c.maxRetention) {
		return session.Command{}, fmt.Errorf("%w: %d minutes (allowed 1-%d)", ErrInvalidWindow, minutes, c.maxRetention)
	}
	return session.Command{Kind: session.CommandSetWindow, Minutes: minutes}, nil
}

// Shutdown builds a shutdown command.
func (c *Catalogue) Shutdown() session.Command {
	return session.Command{Kind: session.CommandShutdown}
}

func convertArg(v any, kind ArgKind) (any, error) {
	switch kind {
	case ArgString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil

	case ArgInteger:
		switch x := v.(type) {
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", x)
			}
			return n, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case float64:
			if x != float64(int64(x)) {
				return nil, fmt.Errorf("%v is not an integer", x)
			}
			return int64(x), nil
		default:
			return nil, fmt.Errorf("%T is not an integer", v)
		}

	default:
		if s, ok := v.(string); ok {
			return instrument.AutoConvert(s), nil
		}
		return v, nil
	}
}
