package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "lidarlink"

// Topics builds lidarlink's MQTT topics under one prefix.
// Using these helpers keeps topic naming consistent across publishers and
// subscribers.
//
//	topics := mqtt.Topics{Prefix: "site1/lidar"}
//	topics.State()
//	// Returns: "site1/lidar/state"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Status returns the retained process status topic, also used as the LWT.
//
// Example: lidarlink/status
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// State returns the retained snapshot topic.
//
// Example: lidarlink/state
func (t Topics) State() string {
	return t.prefix() + "/state"
}

// Telemetry returns the topic carrying every acquisition batch.
//
// Example: lidarlink/telemetry
func (t Topics) Telemetry() string {
	return t.prefix() + "/telemetry"
}

// Attribute returns the retained topic of one attribute's latest value.
//
// Example: lidarlink/attribute/HEARTBEAT
func (t Topics) Attribute(name string) string {
	return fmt.Sprintf("%s/attribute/%s", t.prefix(), name)
}

// Session returns the retained session state topic.
//
// Example: lidarlink/session
func (t Topics) Session() string {
	return t.prefix() + "/session"
}

// Command returns the topic remote operators publish commands on.
//
// Example: lidarlink/command
func (t Topics) Command() string {
	return t.prefix() + "/command"
}

// CommandResult returns the topic command results are published on.
//
// Example: lidarlink/command/result
func (t Topics) CommandResult() string {
	return t.prefix() + "/command/result"
}

// AllAttributes returns a pattern matching every attribute topic.
//
// Pattern: lidarlink/attribute/+
func (t Topics) AllAttributes() string {
	return t.prefix() + "/attribute/+"
}

// AllTopics returns a pattern matching every lidarlink topic.
//
// Pattern: lidarlink/#
func (t Topics) AllTopics() string {
	return t.prefix() + "/#"
}
