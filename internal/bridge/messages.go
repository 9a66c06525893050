package bridge

import (
	"time"

	"github.com/si3lab/lidarlink/internal/control"
	"github.com/si3lab/lidarlink/internal/session"
)

// CommandMessage is published by remote operators on {prefix}/command.
//
// Example:
//
//	{"id": "ops-17", "kind": "write", "name": "laser_enable", "value": true}
type CommandMessage struct {
	// ID correlates the command with its result. Assigned when empty.
	ID string `json:"id,omitempty"`

	control.Request
}

// Result status values.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
)

// ResultMessage is published on {prefix}/command/result for every executed
// command, and for MQTT commands rejected before they were queued.
type ResultMessage struct {
	ID         string              `json:"id"`
	Kind       session.CommandKind `json:"kind"`
	Name       string              `json:"name,omitempty"`
	Source     string              `json:"source,omitempty"`
	Status     string              `json:"status"`
	Output     []any               `json:"output,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMS float64             `json:"duration_ms"`
	Timestamp  time.Time           `json:"timestamp"`
}

// SessionMessage is the retained payload of {prefix}/session.
type SessionMessage struct {
	State  session.State `json:"state"`
	From   session.State `json:"from"`
	Reason string        `json:"reason,omitempty"`
	At     time.Time     `json:"at"`
}

// AttributeMessage is the retained payload of {prefix}/attribute/{name}.
type AttributeMessage struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func newResultMessage(cmd session.Command, res session.Result, now time.Time) ResultMessage {
	msg := ResultMessage{
		ID:         res.ID,
		Kind:       res.Kind,
		Name:       res.Name,
		Source:     cmd.Source,
		Status:     StatusOK,
		Output:     res.Output,
		Error:      res.ErrorText(),
		DurationMS: float64(res.Duration) / float64(time.Millisecond),
		Timestamp:  now.UTC(),
	}
	if res.Err != nil {
		msg.Status = StatusFailed
	}
	return msg
}
