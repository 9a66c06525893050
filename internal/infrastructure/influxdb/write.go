package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/si3lab/lidarlink/internal/session"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

// Field names by value type. Splitting them keeps one field type per
// measurement field across every attribute.
const (
	fieldNumber = "value"
	fieldFlag   = "flag"
	fieldText   = "text"

	// sessionMeasurement holds connection state changes.
	sessionMeasurement = "lidar_session"
)

// Consume implements acquisition.Sink. Each sample becomes one point tagged
// with its attribute and the batch source, stamped with the sample time.
// Samples without a value are skipped.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) Consume(batch telemetry.Batch) {
	if !c.IsConnected() {
		return
	}

	for _, s := range batch.Samples {
		name, value, ok := sampleField(s.Value)
		if !ok {
			c.skipped.Add(1)
			continue
		}
		ts := s.Timestamp
		if ts.IsZero() {
			ts = batch.CapturedAt
		}
		c.WritePoint(c.measurement,
			map[string]string{
				"attribute": s.Attribute,
				"source":    batch.Source,
			},
			map[string]any{name: value},
			ts,
		)
	}
}

// ObserveTransition is a session state observer. It records the new state
// as an integer field so connection gaps can be graphed next to telemetry.
func (c *Client) ObserveTransition(t session.Transition) {
	fields := map[string]any{
		"code":      int64(t.To),
		"connected": t.To == session.StateConnected,
	}
	if reason := t.Reason(); reason != "" {
		fields["reason"] = reason
	}
	c.WritePoint(sessionMeasurement,
		map[string]string{"state": t.To.String()},
		fields,
		t.At,
	)
}

// WritePoint writes a custom point with a specific timestamp. A zero
// timestamp means now.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
	c.points.Add(1)
}

// sampleField picks the field name and line-protocol value for a native
// instrument value. Numbers are widened to float64.
func sampleField(v any) (string, any, bool) {
	switch x := v.(type) {
	case nil:
		return "", nil, false
	case bool:
		return fieldFlag, x, true
	case string:
		return fieldText, x, true
	case float64:
		return fieldNumber, x, true
	case float32:
		return fieldNumber, float64(x), true
	case int:
		return fieldNumber, float64(x), true
	case int8:
		return fieldNumber, float64(x), true
	case int16:
		return fieldNumber, float64(x), true
	case int32:
		return fieldNumber, float64(x), true
	case int64:
		return fieldNumber, float64(x), true
	case uint:
		return fieldNumber, float64(x), true
	case uint8:
		return fieldNumber, float64(x), true
	case uint16:
		return fieldNumber, float64(x), true
	case uint32:
		return fieldNumber, float64(x), true
	case uint64:
		return fieldNumber, float64(x), true
	case time.Time:
		return fieldText, x.UTC().Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return fieldText, x.String(), true
	default:
		return fieldText, fmt.Sprint(x), true
	}
}
