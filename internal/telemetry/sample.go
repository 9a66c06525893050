// Package telemetry defines the value types that flow from the acquisition
// engine into the snapshot, the history store and the export sinks.
package telemetry

import "time"

// Source values identify which acquisition strategy produced a batch.
const (
	SourcePush = "push"
	SourcePoll = "poll"
)

// Sample is one attribute value observed at one instant.
//
// Value holds the instrument's native value unchanged (bool, int32, float64,
// string, ...). Timestamp is the client's receipt/capture time in UTC;
// device-side timestamps are not used.
type Sample struct {
	Attribute string    `json:"attribute"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Batch is the unit applied atomically to every store.
//
// For poll ticks all samples share CapturedAt. For push notifications the
// batch holds the items of one notification message, each stamped at receipt.
type Batch struct {
	Source     string    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
	Samples    []Sample  `json:"samples"`
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Samples)
}
