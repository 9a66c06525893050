// Package api implements the HTTP and WebSocket surface of lidarlink.
//
// This package provides:
//   - Read endpoints for session status, the attribute schema, the current
//     snapshot and the rolling history of each attribute
//   - A command endpoint that places operator commands on the session's
//     non-blocking command channel
//   - A WebSocket hub streaming telemetry batches, session state changes
//     and command results
//   - The Prometheus exposition endpoint
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Graceful Degradation
//
// The server keeps answering while the instrument link is down. Reads
// return the last known values; commands that need the link fail with
// 503 and the session keeps reconnecting on its own.
package api
