package acquisition

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

// DefaultPollFloor is the minimum sleep between two poll ticks.
const DefaultPollFloor = time.Millisecond

// PollOptions tunes a Poll strategy.
type PollOptions struct {
	// Interval is the target tick period. Values below Floor are clamped.
	Interval time.Duration

	// Floor is the minimum sleep between ticks. Default: 1ms.
	Floor time.Duration

	// FailureThreshold reports ErrPollDegraded after this many consecutive
	// failed ticks. 0 disables the check; the liveness probe remains the
	// primary loss detector.
	FailureThreshold int
}

// PollStats describes the poll loop's behaviour across every task it ran.
type PollStats struct {
	Ticks               uint64 `json:"ticks"`
	Failures            uint64 `json:"failures"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
}

// Poll acquires telemetry by reading every mapped address once per tick.
//
// All values of a tick share one capture timestamp and are applied as one
// batch. A failed tick is logged and skipped; the loop keeps its cadence.
type Poll struct {
	attrs    *attribute.Map
	opts     PollOptions
	pipeline *Pipeline
	logger   Logger
	now      func() time.Time

	ticks       atomic.Uint64
	failures    atomic.Uint64
	consecutive atomic.Int64
}

// NewPoll creates a poll strategy.
func NewPoll(attrs *attribute.Map, opts PollOptions, pipeline *Pipeline) *Poll {
	if opts.Floor <= 0 {
		opts.Floor = DefaultPollFloor
	}
	if opts.Interval < opts.Floor {
		opts.Interval = opts.Floor
	}
	return &Poll{
		attrs:    attrs,
		opts:     opts,
		pipeline: pipeline,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the strategy.
func (p *Poll) SetLogger(logger Logger) {
	p.logger = logger
}

// Mode implements Strategy.
func (p *Poll) Mode() string {
	return ModePoll
}

// Interval returns the effective tick period after clamping.
func (p *Poll) Interval() time.Duration {
	return p.opts.Interval
}

// Start launches the poll loop. Polling needs no server-side setup, so
// Start only fails for a nil connection.
func (p *Poll) Start(ctx context.Context, conn instrument.Conn) (*Task, error) {
	if conn == nil {
		return nil, ErrNilConn
	}

	task, taskCtx := newTask(ctx, ModePoll)
	go p.run(taskCtx, task, conn)

	p.logger.Info("poll acquisition started",
		"interval", p.opts.Interval,
		"attributes", p.attrs.Len(),
	)
	return task, nil
}

func (p *Poll) run(ctx context.Context, task *Task, conn instrument.Conn) {
	defer close(task.done)

	addrs := p.attrs.Addresses()
	names := p.attrs.Names()
	consecutive := 0

	for {
		start := p.now()
		ok := p.safeTick(ctx, conn, addrs, names)
		if ctx.Err() != nil {
			return
		}

		p.ticks.Add(1)
		if ok {
			consecutive = 0
		} else {
			consecutive++
			p.failures.Add(1)
			if p.opts.FailureThreshold > 0 && consecutive >= p.opts.FailureThreshold {
				p.logger.Error("poll failure threshold reached",
					"consecutive_failures", consecutive,
				)
				task.fail(ErrPollDegraded)
				return
			}
		}

		p.consecutive.Store(int64(consecutive))

		elapsed := p.now().Sub(start)
		wait := p.opts.Interval - elapsed
		if wait < p.opts.Floor {
			wait = p.opts.Floor
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// safeTick runs one tick and converts a panic into a failed tick.
func (p *Poll) safeTick(ctx context.Context, conn instrument.Conn, addrs []attribute.Address, names []string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in poll tick", "panic", r)
			ok = false
		}
	}()
	return p.tick(ctx, conn, addrs, names)
}

// tick performs one batched read and applies the result.
func (p *Poll) tick(ctx context.Context, conn instrument.Conn, addrs []attribute.Address, names []string) bool {
	values, err := conn.ReadMany(ctx, addrs)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("poll tick failed", "error", err)
		}
		return false
	}

	captured := p.now().UTC()
	batch := telemetry.Batch{
		Source:     telemetry.SourcePoll,
		CapturedAt: captured,
		Samples:    make([]telemetry.Sample, 0, len(values)),
	}
	for i, v := range values {
		if i >= len(names) || v == nil {
			continue
		}
		batch.Samples = append(batch.Samples, telemetry.Sample{
			Attribute: names[i],
			Value:     v,
			Timestamp: captured,
		})
	}
	p.pipeline.Apply(batch)
	return true
}

// Stats returns tick counters.
func (p *Poll) Stats() PollStats {
	return PollStats{
		Ticks:               p.ticks.Load(),
		Failures:            p.failures.Load(),
		ConsecutiveFailures: p.consecutive.Load(),
	}
}
