package opcua

import (
	"fmt"

	"github.com/gopcua/opcua/ua"
)

// dataValue unwraps the Go value of a DataValue, or nil when it carries
// none.
func dataValue(dv *ua.DataValue) any {
	if dv == nil || dv.Value == nil {
		return nil
	}
	return dv.Value.Value()
}

// toVariant builds a variant for an outgoing value. Platform-sized
// integers are widened to int64, which the encoder supports.
func toVariant(v any) (*ua.Variant, error) {
	switch x := v.(type) {
	case int:
		v = int64(x)
	case uint:
		v = uint64(x)
	case nil:
		return nil, fmt.Errorf("cannot encode a nil value")
	}
	variant, err := ua.NewVariant(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return variant, nil
}
