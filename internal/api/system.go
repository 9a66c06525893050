package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"
)

// Link is an outbound connection (MQTT broker, InfluxDB) reported by
// GET /system.
type Link interface {
	IsConnected() bool
}

// HealthChecker is implemented by links that can verify themselves. GET
// /health runs the check with healthCheckTimeout.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// SystemMetrics is the process-level view returned by GET /system.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Links         []LinkMetrics    `json:"links"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// LinkMetrics reports one outbound connection.
type LinkMetrics struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// DatabaseMetrics contains journal connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystem returns runtime, link and journal pool statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Links: make([]LinkMetrics, 0, len(s.links)),
	}

	for name, link := range s.links {
		metrics.Links = append(metrics.Links, LinkMetrics{Name: name, Connected: link.IsConnected()})
	}
	sort.Slice(metrics.Links, func(i, j int) bool { return metrics.Links[i].Name < metrics.Links[j].Name })

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
