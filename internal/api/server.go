package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/si3lab/lidarlink/internal/acquisition"
	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/audit"
	"github.com/si3lab/lidarlink/internal/control"
	"github.com/si3lab/lidarlink/internal/entity"
	"github.com/si3lab/lidarlink/internal/history"
	"github.com/si3lab/lidarlink/internal/infrastructure/config"
	"github.com/si3lab/lidarlink/internal/infrastructure/database"
	"github.com/si3lab/lidarlink/internal/infrastructure/logging"
	"github.com/si3lab/lidarlink/internal/session"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// WebSocket event channels.
const (
	ChannelTelemetry     = "telemetry.batch"
	ChannelSessionState  = "session.state_changed"
	ChannelCommandResult = "command.result"
)

// Session is the part of session.Manager the API uses.
type Session interface {
	Stats() session.Stats
	Submit(cmd session.Command) (string, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Session   Session
	Attrs     *attribute.Map
	Store     *history.Store
	Projector *entity.Projector
	Catalogue *control.Catalogue

	// Optional.
	Pipeline *acquisition.Pipeline
	Poll     *acquisition.Poll
	Journal  audit.Repository
	DB       *database.DB
	Links    map[string]Link
	Metrics  http.Handler

	// CommandWait bounds how long ?wait=true requests wait for a result.
	// Default: 10s
	CommandWait time.Duration

	Version string
}

// Server is the HTTP API server.
//
// It is created with New, wired as a pipeline sink and session observer,
// then started with Start.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	session     Session
	attrs       *attribute.Map
	store       *history.Store
	projector   *entity.Projector
	catalogue   *control.Catalogue
	pipeline    *acquisition.Pipeline
	poll        *acquisition.Poll
	journal     audit.Repository
	db          *database.DB
	links       map[string]Link
	metrics     http.Handler
	commandWait time.Duration
	version     string
	startTime   time.Time
	now         func() time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, session, schema, stores, catalogue)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Session == nil:
		return nil, fmt.Errorf("session is required")
	case deps.Attrs == nil:
		return nil, fmt.Errorf("attribute map is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("history store is required")
	case deps.Projector == nil:
		return nil, fmt.Errorf("projector is required")
	case deps.Catalogue == nil:
		return nil, fmt.Errorf("control catalogue is required")
	}

	wait := deps.CommandWait
	if wait <= 0 {
		wait = 10 * time.Second
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		session:     deps.Session,
		attrs:       deps.Attrs,
		store:       deps.Store,
		projector:   deps.Projector,
		catalogue:   deps.Catalogue,
		pipeline:    deps.Pipeline,
		poll:        deps.Poll,
		journal:     deps.Journal,
		db:          deps.DB,
		links:       deps.Links,
		metrics:     deps.Metrics,
		commandWait: wait,
		version:     deps.Version,
		startTime:   time.Now(),
		now:         time.Now,
		hub:         NewHub(deps.WS, deps.Logger),
	}, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Consume implements acquisition.Sink by streaming each batch to
// subscribed WebSocket clients.
func (s *Server) Consume(batch telemetry.Batch) {
	s.hub.Broadcast(ChannelTelemetry, batch)
}

// ObserveTransition is a session state observer.
func (s *Server) ObserveTransition(t session.Transition) {
	s.hub.Broadcast(ChannelSessionState, map[string]any{
		"from":   t.From,
		"to":     t.To,
		"reason": t.Reason(),
		"at":     t.At,
	})
}

// ObserveCommand is a session command observer.
func (s *Server) ObserveCommand(cmd session.Command, res session.Result) {
	s.hub.Broadcast(ChannelCommandResult, newCommandResult(cmd.Source, res))
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent of the hub's lifetime
//
// Returns:
//   - error: Reserved; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
