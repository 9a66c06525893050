// Package bridge exposes the instrument session on an MQTT broker.
//
// Outbound, it is an acquisition sink and a session observer: every batch
// goes to {prefix}/telemetry (and optionally to per-attribute retained
// topics), the snapshot is republished retained on {prefix}/state at a
// fixed interval, session transitions go to {prefix}/session and command
// results to {prefix}/command/result.
//
// Inbound, it subscribes to {prefix}/command. Each message is resolved
// through the control catalogue and placed on the session's command
// channel with source "mqtt". Commands that cannot be resolved or queued
// are answered immediately with a "rejected" result.
//
// The bridge never blocks acquisition: publishes that fail while the broker
// is unreachable are counted and dropped.
package bridge
