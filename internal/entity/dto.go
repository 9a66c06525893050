package entity

import (
	"time"

	"github.com/si3lab/lidarlink/internal/attribute"
)

// DTO is the serialisable boundary form of the snapshot used by the API and
// the MQTT state publisher. Payload carries every schema attribute, with nil
// for fields that have not been observed yet.
type DTO struct {
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// ToDTO converts a snapshot into its boundary form, stamped with now.
func ToDTO(attrs *attribute.Map, snap Snapshot, now time.Time) DTO {
	payload := make(map[string]any, attrs.Len())
	for _, name := range attrs.Names() {
		if f, ok := snap.Fields[name]; ok {
			payload[name] = f.Value
		} else {
			payload[name] = nil
		}
	}
	return DTO{Payload: payload, Timestamp: now.UTC()}
}
