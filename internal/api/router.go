package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/system", s.handleSystem)

		r.Get("/attributes", s.handleAttributes)
		r.Get("/snapshot", s.handleSnapshot)

		r.Route("/history", func(r chi.Router) {
			r.Get("/retention", s.handleGetRetention)
			r.Put("/retention", s.handleSetRetention)
			r.Get("/{attribute}", s.handleHistory)
		})

		r.Get("/controls", s.handleControls)
		r.Post("/commands", s.handleCommand)
		r.Get("/events", s.handleEvents)

		r.Get("/ws", s.handleWebSocket)

		if s.metrics != nil {
			r.Handle("/metrics", s.metrics)
		}
	})

	return r
}

// handleHealth reports liveness of the process, not of the instrument link.
// The journal and every link that can check itself are probed; a failing
// one marks the process degraded but the endpoint still answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	checks := make(map[string]string)
	record := func(name string, err error) {
		if err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}

	if s.db != nil {
		record("database", s.db.HealthCheck(ctx))
	}
	for name, link := range s.links {
		if hc, ok := link.(HealthChecker); ok {
			record(name, hc.HealthCheck(ctx))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"session": s.session.Stats().State,
		"checks":  checks,
	})
}

// handleStatus returns session, acquisition and store counters.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"timestamp":         s.now().UTC().Format(time.RFC3339),
		"version":           s.version,
		"uptime_seconds":    int64(time.Since(s.startTime).Seconds()),
		"session":           s.session.Stats(),
		"history":           s.store.Stats(),
		"websocket_clients": s.hub.ClientCount(),
		"websocket_dropped": s.hub.Dropped(),
	}
	if s.pipeline != nil {
		resp["pipeline"] = s.pipeline.Stats()
	}
	if s.poll != nil {
		resp["poll"] = s.poll.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
