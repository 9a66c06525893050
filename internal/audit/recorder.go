package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/si3lab/lidarlink/internal/session"
)

const (
	defaultQueueSize = 128
	writeTimeout     = 5 * time.Second
	pruneInterval    = time.Hour
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder turns session observations into journal events.
//
// Observers are called on session goroutines, so events are queued and
// written by Run. When the queue is full the event is dropped and counted.
type Recorder struct {
	repo   Repository
	logger Logger
	queue  chan Event

	// keep is how long events are kept; zero keeps them forever.
	keep time.Duration

	mu      sync.Mutex
	dropped uint64
	written uint64
}

// NewRecorder creates a recorder writing to repo. keep bounds the journal's
// age; zero disables pruning.
func NewRecorder(repo Repository, keep time.Duration) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: noopLogger{},
		queue:  make(chan Event, defaultQueueSize),
		keep:   keep,
	}
}

// SetLogger sets the logger.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Attach registers the recorder as a state and command observer.
func (r *Recorder) Attach(m *session.Manager) {
	m.OnStateChange(r.ObserveTransition)
	m.OnCommand(r.ObserveCommand)
}

// ObserveTransition queues a state change event.
func (r *Recorder) ObserveTransition(t session.Transition) {
	e := Event{
		Kind:      KindStateChange,
		Subject:   t.To.String(),
		Status:    t.To.String(),
		Message:   t.Reason(),
		Details:   map[string]any{"from": t.From.String()},
		CreatedAt: t.At,
	}
	r.enqueue(e)
}

// ObserveCommand queues a command event.
func (r *Recorder) ObserveCommand(cmd session.Command, res session.Result) {
	e := Event{
		Kind:     KindCommand,
		Subject:  string(cmd.Kind),
		Status:   StatusOK,
		Source:   cmd.Source,
		Message:  res.ErrorText(),
		Duration: res.Duration,
		Details:  commandDetails(cmd, res),
	}
	if cmd.ID != "" {
		e.ID = "cmd-" + cmd.ID
	}
	if res.Err != nil {
		e.Status = StatusFailed
	}
	r.enqueue(e)
}

func commandDetails(cmd session.Command, res session.Result) map[string]any {
	d := map[string]any{}
	if cmd.Name != "" {
		d["name"] = cmd.Name
	}
	if cmd.Address != "" {
		d["address"] = string(cmd.Address)
	}
	if len(cmd.Args) > 0 {
		d["args"] = stringify(cmd.Args)
	}
	if cmd.Kind == session.CommandWrite {
		d["value"] = fmt.Sprint(cmd.Value)
		d["type"] = cmd.Hint.String()
	}
	if cmd.Kind == session.CommandSetWindow {
		d["minutes"] = cmd.Minutes
	}
	if len(res.Output) > 0 {
		d["output"] = stringify(res.Output)
	}
	return d
}

// stringify renders instrument values as text so that any Go type the
// link returns survives the JSON column.
func stringify(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func (r *Recorder) enqueue(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	select {
	case r.queue <- e:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logger.Warn("journal queue full, event dropped", "kind", e.Kind, "subject", e.Subject)
	}
}

// Run writes queued events until ctx is cancelled, then drains what is
// left. It prunes expired events once at start and hourly afterwards.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case e := <-r.queue:
			r.write(ctx, e)
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) drain() {
	ctx := context.Background()
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Warn("journal write failed", "kind", e.Kind, "subject", e.Subject, "error", err)
		return
	}
	r.mu.Lock()
	r.written++
	r.mu.Unlock()
}

func (r *Recorder) prune(ctx context.Context) {
	if r.keep <= 0 {
		return
	}
	n, err := r.repo.Prune(ctx, time.Now().Add(-r.keep))
	if err != nil {
		r.logger.Warn("journal prune failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("journal pruned", "events", n)
	}
}

// Counts returns how many events were written and dropped.
func (r *Recorder) Counts() (written, dropped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.dropped
}
