package attribute

import (
	"fmt"
	"strings"
)

// Kind is the declared value kind of an attribute.
//
// The kind is schema metadata. Values are stored exactly as the
// instrument delivers them; nothing is coerced to the declared kind.
type Kind int

const (
	KindString Kind = iota
	KindBoolean
	KindInteger
	KindFloat
)

// String returns the lower-case name used in YAML files and API payloads.
func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "bool"
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Graphable reports whether values of this kind can be plotted as a series.
func (k Kind) Graphable() bool {
	return k == KindBoolean || k == KindInteger || k == KindFloat
}

// ParseKind converts a kind name to a Kind.
// Accepted names: string/str, bool/boolean, int/integer/int32, float/double.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str":
		return KindString, nil
	case "bool", "boolean":
		return KindBoolean, nil
	case "int", "integer", "int32":
		return KindInteger, nil
	case "float", "double":
		return KindFloat, nil
	default:
		return KindString, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Group classifies attributes for listings.
type Group string

const (
	GroupStatus        Group = "status"
	GroupErrors        Group = "errors"
	GroupRawChannels   Group = "raw_channels"
	GroupDerived       Group = "derived"
	GroupMetadata      Group = "metadata"
	GroupProducts      Group = "products"
	GroupPointing      Group = "pointing"
	GroupRemoteControl Group = "remote_control"
	GroupSafety        Group = "safety"
	GroupMeasurement   Group = "measurement"
)
