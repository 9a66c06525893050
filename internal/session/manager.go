package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/si3lab/lidarlink/internal/acquisition"
	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
)

// Default timings.
const (
	DefaultProbeInterval    = 5 * time.Second
	DefaultReconnectBackoff = 10 * time.Second
	DefaultCommandTimeout   = 5 * time.Second
	DefaultTeardownTimeout  = 5 * time.Second
	DefaultQueueSize        = 32
)

// Config holds configuration for a Manager.
type Config struct {
	// URL is the instrument endpoint passed to the Dialer.
	URL string

	// ProbeAddress is read on every probe tick while connected. Usually
	// the first address of the attribute map.
	ProbeAddress attribute.Address

	// ProbeInterval is how often the liveness probe runs.
	ProbeInterval time.Duration

	// ReconnectBackoff is the wait between a loss (or failed attempt) and
	// the next connection attempt. Attempts are never capped.
	ReconnectBackoff time.Duration

	// CommandTimeout bounds each invoke, write or read command.
	CommandTimeout time.Duration

	// TeardownTimeout bounds subscription deletion and transport close.
	TeardownTimeout time.Duration

	// QueueSize is the capacity of the command channel.
	QueueSize int
}

// RetentionSetter changes the history window on set-window commands.
type RetentionSetter interface {
	SetRetention(minutes int) error
}

// Logger defines the logging interface for the session manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a point-in-time view of the manager.
type Stats struct {
	State            State     `json:"state"`
	URL              string    `json:"url"`
	Mode             string    `json:"mode"`
	LastError        string    `json:"last_error,omitempty"`
	ConnectedAt      time.Time `json:"connected_at,omitzero"`
	Attempts         int       `json:"attempts"`
	Reconnects       int       `json:"reconnects"`
	Losses           int       `json:"losses"`
	CommandsExecuted int       `json:"commands_executed"`
	CommandsFailed   int       `json:"commands_failed"`
	CommandsRejected int       `json:"commands_rejected"`
	QueueDepth       int       `json:"queue_depth"`
}

// Manager owns the instrument session.
//
// It dials the instrument, lends the connection to one acquisition task,
// probes liveness, and reconnects after a fixed backoff when the link is
// lost. Commands from the console, API and MQTT arrive on a buffered
// channel and are executed without blocking acquisition.
type Manager struct {
	config    Config
	dialer    instrument.Dialer
	strategy  acquisition.Strategy
	retention RetentionSetter
	logger    Logger
	now       func() time.Time

	// opMu serialises Connect, Disconnect and loss handling.
	opMu sync.Mutex

	mu          sync.RWMutex
	state       State
	conn        instrument.Conn
	task        *acquisition.Task
	lastError   error
	connectedAt time.Time
	attempts    int
	reconnects  int
	losses      int
	executed    int
	failed      int
	rejected    int
	started     bool
	stateObs    []func(Transition)
	commandObs  []func(Command, Result)

	commands chan Command
	wake     chan struct{}
	shutdown chan struct{}

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	closeOnce    sync.Once
}

// NewManager creates a session manager. Zero durations take the defaults.
func NewManager(cfg Config, dialer instrument.Dialer, strategy acquisition.Strategy) *Manager {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = DefaultReconnectBackoff
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:   cfg,
		dialer:   dialer,
		strategy: strategy,
		logger:   noopLogger{},
		now:      time.Now,
		state:    StateDisconnected,
		commands: make(chan Command, cfg.QueueSize),
		wake:     make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetRetentionSetter sets the target of set-window commands.
func (m *Manager) SetRetentionSetter(r RetentionSetter) {
	m.retention = r
}

// OnStateChange registers an observer called after every state change.
// Observers run synchronously and must not call Connect, Disconnect or
// Close.
func (m *Manager) OnStateChange(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateObs = append(m.stateObs, fn)
}

// OnCommand registers an observer called after every executed command.
func (m *Manager) OnCommand(fn func(Command, Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandObs = append(m.commandObs, fn)
}

// Start makes one immediate connection attempt and launches the prober
// and the reconnect supervisor. A failed first attempt is not an error:
// the supervisor retries after the backoff.
//
// Returns:
//   - error: ErrClosed if Close has been called
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateClosing {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if err := m.Connect(ctx); err != nil {
		m.logger.Warn("initial connection failed, will retry",
			"url", m.config.URL,
			"retry_in", m.config.ReconnectBackoff,
			"error", err,
		)
	}

	m.wg.Add(2)
	go m.probe()
	go m.supervise()
	return nil
}

// Connect dials the instrument and starts acquisition.
//
// Returns:
//   - error: wraps instrument.ErrConnection on dial or acquisition setup
//     failure; ErrClosed after Close
func (m *Manager) Connect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosing:
		m.mu.Unlock()
		return ErrClosed
	case StateConnected:
		m.mu.Unlock()
		return nil
	}
	m.attempts++
	m.mu.Unlock()

	m.setState(StateConnecting, nil)
	m.logger.Info("connecting to instrument", "url", m.config.URL, "mode", m.strategy.Mode())

	conn, err := m.dialer.Dial(ctx, m.config.URL)
	if err != nil {
		if !errors.Is(err, instrument.ErrConnection) {
			err = fmt.Errorf("%w: %w", instrument.ErrConnection, err)
		}
		m.setState(StateDisconnected, err)
		return err
	}

	// The task outlives the caller's context; it ends on Disconnect,
	// loss or Close.
	task, err := m.strategy.Start(m.ctx, conn)
	if err != nil {
		m.closeConn(conn)
		err = fmt.Errorf("%w: starting %s acquisition: %w", instrument.ErrConnection, m.strategy.Mode(), err)
		m.setState(StateDisconnected, err)
		return err
	}

	m.mu.Lock()
	if m.state == StateClosing {
		m.mu.Unlock()
		m.stopTask(task)
		m.closeConn(conn)
		return ErrClosed
	}
	m.conn = conn
	m.task = task
	m.connectedAt = m.now()
	m.mu.Unlock()

	m.setState(StateConnected, nil)
	m.logger.Info("connected to instrument", "url", m.config.URL, "mode", task.Mode())

	m.wg.Add(1)
	go m.watch(task)
	return nil
}

// Disconnect stops acquisition and closes the transport. It is idempotent
// and never fails; teardown errors are logged.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardownLocked(ctx, nil)
	return nil
}

// teardownLocked releases the active task and connection. The caller holds
// opMu. cause, when non-nil, is recorded as the loss reason.
func (m *Manager) teardownLocked(ctx context.Context, cause error) {
	m.mu.Lock()
	conn, task := m.conn, m.task
	m.conn, m.task = nil, nil
	m.connectedAt = time.Time{}
	m.mu.Unlock()

	if task != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.TeardownTimeout)
		if err := task.Stop(stopCtx); err != nil {
			m.logger.Warn("acquisition task did not stop in time", "error", err)
		}
		cancel()
	}
	if conn != nil {
		m.closeConn(conn)
	}

	if m.State() != StateClosing {
		m.setState(StateDisconnected, cause)
	}
}

// markLost handles a failed probe or a fatal acquisition error. It only
// acts when conn is still the active connection, so stale reports from a
// previous session are ignored.
func (m *Manager) markLost(conn instrument.Conn, cause error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state != StateConnected || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.losses++
	m.mu.Unlock()

	m.logger.Warn("instrument link lost",
		"url", m.config.URL,
		"retry_in", m.config.ReconnectBackoff,
		"error", cause,
	)
	m.teardownLocked(m.ctx, cause)
}

func (m *Manager) stopTask(task *acquisition.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.TeardownTimeout)
	defer cancel()
	if err := task.Stop(ctx); err != nil {
		m.logger.Warn("acquisition task did not stop in time", "error", err)
	}
}

func (m *Manager) closeConn(conn instrument.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.TeardownTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		if !errors.Is(err, instrument.ErrTeardown) {
			err = fmt.Errorf("%w: %w", instrument.ErrTeardown, err)
		}
		m.logger.Warn("closing instrument connection", "error", err)
	}
}

// watch turns a fatal task error into a link loss.
func (m *Manager) watch(task *acquisition.Task) {
	defer m.wg.Done()

	select {
	case err := <-task.Fatal():
		m.markLost(m.connFor(task), err)
	case <-task.Done():
		select {
		case err := <-task.Fatal():
			m.markLost(m.connFor(task), err)
		default:
		}
	case <-m.ctx.Done():
	}
}

// connFor returns the connection lent to task, or nil if task is no
// longer active.
func (m *Manager) connFor(task *acquisition.Task) instrument.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.task != task {
		return nil
	}
	return m.conn
}

// probe reads the probe address on every interval while connected.
func (m *Manager) probe() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		conn, state := m.conn, m.state
		m.mu.RUnlock()
		if state != StateConnected || conn == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.config.ProbeInterval)
		_, err := conn.ReadOne(ctx, m.config.ProbeAddress)
		cancel()
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.markLost(conn, fmt.Errorf("liveness probe: %w", err))
			continue
		}
		m.logger.Debug("liveness probe ok", "address", m.config.ProbeAddress)
	}
}

// supervise retries the connection while disconnected and executes
// queued commands. Only this goroutine makes reconnect attempts, so at
// most one is in flight.
func (m *Manager) supervise() {
	defer m.wg.Done()

	var (
		timer *time.Timer
		retry <-chan time.Time
	)
	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer, retry = nil, nil
		}
	}
	defer disarm()

	for {
		switch m.State() {
		case StateDisconnected:
			if timer == nil {
				timer = time.NewTimer(m.config.ReconnectBackoff)
				retry = timer.C
			}
		default:
			disarm()
		}

		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		case <-retry:
			timer, retry = nil, nil
			if m.State() != StateDisconnected {
				continue
			}
			m.mu.Lock()
			m.reconnects++
			attempt := m.reconnects
			m.mu.Unlock()
			m.logger.Info("reconnect attempt", "attempt", attempt, "url", m.config.URL)
			if err := m.Connect(m.ctx); err != nil && m.ctx.Err() == nil {
				m.logger.Warn("reconnect failed",
					"attempt", attempt,
					"retry_in", m.config.ReconnectBackoff,
					"error", err,
				)
			}
		case cmd := <-m.commands:
			m.dispatch(cmd)
		}
	}
}

// setState records a transition and notifies observers.
func (m *Manager) setState(to State, cause error) {
	m.mu.Lock()
	from := m.state
	if from == StateClosing || (from == to && cause == nil) {
		m.mu.Unlock()
		return
	}
	m.state = to
	if cause != nil {
		m.lastError = cause
	}
	observers := slices.Clone(m.stateObs)
	m.mu.Unlock()

	t := Transition{From: from, To: to, Err: cause, At: m.now()}
	if cause != nil {
		m.logger.Info("session state changed", "from", from.String(), "to", to.String(), "reason", cause)
	} else {
		m.logger.Info("session state changed", "from", from.String(), "to", to.String())
	}

	for _, fn := range observers {
		fn(t)
	}

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Submit queues a command without blocking.
//
// Returns:
//   - string: the command ID (assigned when cmd.ID is empty)
//   - error: ErrInvalidCommand, ErrCommandQueueFull, or ErrClosed
func (m *Manager) Submit(cmd Command) (string, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	if m.State() == StateClosing {
		return "", ErrClosed
	}

	select {
	case m.commands <- cmd:
		m.logger.Debug("command queued", "id", cmd.ID, "kind", string(cmd.Kind), "name", cmd.Name)
		return cmd.ID, nil
	default:
		m.mu.Lock()
		m.rejected++
		m.mu.Unlock()
		m.logger.Warn("command rejected, queue full", "id", cmd.ID, "kind", string(cmd.Kind))
		return "", ErrCommandQueueFull
	}
}

// dispatch runs a command. Instrument commands run on their own goroutine
// so a slow server never delays reconnect attempts.
func (m *Manager) dispatch(cmd Command) {
	switch cmd.Kind {
	case CommandInvoke, CommandWrite, CommandRead:
		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.finish(cmd, m.execute(conn, cmd))
		}()
	default:
		m.finish(cmd, m.execute(nil, cmd))
	}
}

func (m *Manager) execute(conn instrument.Conn, cmd Command) Result {
	start := m.now()
	res := Result{ID: cmd.ID, Kind: cmd.Kind, Name: cmd.Name}

	switch cmd.Kind {
	case CommandSetWindow:
		if m.retention == nil {
			res.Err = fmt.Errorf("%w: no history store", ErrInvalidCommand)
			break
		}
		res.Err = m.retention.SetRetention(cmd.Minutes)

	case CommandShutdown:
		m.shutdownOnce.Do(func() { close(m.shutdown) })

	default:
		if conn == nil {
			res.Err = instrument.ErrNotConnected
			break
		}
		ctx, cancel := context.WithTimeout(m.ctx, m.config.CommandTimeout)
		switch cmd.Kind {
		case CommandInvoke:
			res.Output, res.Err = conn.Call(ctx, cmd.Address, cmd.Args...)
		case CommandWrite:
			var value any
			value, res.Err = instrument.Coerce(cmd.Value, cmd.Hint)
			if res.Err == nil {
				res.Err = conn.Write(ctx, cmd.Address, value, cmd.Hint)
			}
		case CommandRead:
			var value any
			value, res.Err = conn.ReadOne(ctx, cmd.Address)
			if res.Err == nil {
				res.Output = []any{value}
			}
		}
		cancel()
	}

	res.Duration = m.now().Sub(start)
	return res
}

// finish records, logs and delivers a command result.
func (m *Manager) finish(cmd Command, res Result) {
	m.mu.Lock()
	m.executed++
	if res.Err != nil {
		m.failed++
	}
	observers := slices.Clone(m.commandObs)
	m.mu.Unlock()

	if res.Err != nil {
		m.logger.Error("command failed",
			"id", cmd.ID,
			"kind", string(cmd.Kind),
			"name", cmd.Name,
			"source", cmd.Source,
			"error", res.Err,
		)
	} else {
		m.logger.Info("command executed",
			"id", cmd.ID,
			"kind", string(cmd.Kind),
			"name", cmd.Name,
			"source", cmd.Source,
			"output", res.Output,
			"duration", res.Duration,
		)
	}

	for _, fn := range observers {
		fn(cmd, res)
	}

	if cmd.Reply != nil {
		select {
		case cmd.Reply <- res:
		default:
			m.logger.Warn("command reply dropped", "id", cmd.ID)
		}
	}
}

// ShutdownRequested is closed when a shutdown command has been executed.
func (m *Manager) ShutdownRequested() <-chan struct{} {
	return m.shutdown
}

// Close stops the prober, the supervisor and acquisition, then releases
// the connection. Closing is terminal.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.setState(StateClosing, nil)
		m.cancel()
		m.wg.Wait()

		m.opMu.Lock()
		m.teardownLocked(ctx, nil)
		m.opMu.Unlock()

		m.logger.Info("session closed", "url", m.config.URL)
	})
	return nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the session is live.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// LastError returns the most recent loss or connection error.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Mode returns the acquisition mode.
func (m *Manager) Mode() string {
	return m.strategy.Mode()
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		State:            m.state,
		URL:              m.config.URL,
		Mode:             m.strategy.Mode(),
		ConnectedAt:      m.connectedAt,
		Attempts:         m.attempts,
		Reconnects:       m.reconnects,
		Losses:           m.losses,
		CommandsExecuted: m.executed,
		CommandsFailed:   m.failed,
		CommandsRejected: m.rejected,
		QueueDepth:       len(m.commands),
	}
	if m.lastError != nil {
		s.LastError = m.lastError.Error()
	}
	return s
}
