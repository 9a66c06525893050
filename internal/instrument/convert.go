package instrument

import (
	"fmt"
	"strconv"
	"strings"
)

// AutoConvert turns operator text into the most specific value it can
// represent: true/false, then an integer, then a float, otherwise the
// trimmed string itself.
func AutoConvert(s string) any {
	t := strings.TrimSpace(s)
	switch strings.ToLower(t) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return f
	}
	return t
}

// Coerce converts v to the Go type matching hint. It is applied only to
// outgoing writes; telemetry values are never coerced.
func Coerce(v any, hint TypeHint) (any, error) {
	switch hint {
	case HintAuto:
		return v, nil
	case HintBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("coerce %q to Boolean: %w", x, err)
			}
			return b, nil
		case int, int32, int64, float64:
			n, _ := toFloat(x)
			return n != 0, nil
		}
	case HintInt32:
		switch x := v.(type) {
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("coerce %q to Int32: %w", x, err)
			}
			return int32(i), nil
		case bool:
			if x {
				return int32(1), nil
			}
			return int32(0), nil
		default:
			if n, ok := toFloat(x); ok {
				if n != float64(int64(n)) {
					return nil, fmt.Errorf("coerce %v to Int32: not an integer", x)
				}
				return int32(n), nil
			}
		}
	case HintDouble:
		switch x := v.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("coerce %q to Double: %w", x, err)
			}
			return f, nil
		default:
			if n, ok := toFloat(x); ok {
				return n, nil
			}
		}
	case HintString:
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("coerce %T to %s: unsupported", v, hint)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
