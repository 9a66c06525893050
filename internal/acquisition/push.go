package acquisition

import (
	"context"
	"fmt"
	"time"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

// DefaultPushPeriod is the publishing interval requested from the server.
const DefaultPushPeriod = 500 * time.Millisecond

// teardownTimeout bounds subscription deletion after cancellation.
const teardownTimeout = 5 * time.Second

// Push acquires telemetry through a server-side change subscription
// covering every mapped address.
//
// Each notification is stamped with the client's receipt time; device
// timestamps are ignored.
type Push struct {
	attrs    *attribute.Map
	period   time.Duration
	pipeline *Pipeline
	logger   Logger
	now      func() time.Time
}

// NewPush creates a push strategy. A non-positive period selects
// DefaultPushPeriod.
func NewPush(attrs *attribute.Map, period time.Duration, pipeline *Pipeline) *Push {
	if period <= 0 {
		period = DefaultPushPeriod
	}
	return &Push{
		attrs:    attrs,
		period:   period,
		pipeline: pipeline,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the strategy.
func (p *Push) SetLogger(logger Logger) {
	p.logger = logger
}

// Mode implements Strategy.
func (p *Push) Mode() string {
	return ModePush
}

// Period returns the requested publishing interval.
func (p *Push) Period() time.Duration {
	return p.period
}

// Start creates the subscription and begins dispatching notifications.
//
// Parameters:
//   - ctx: Parent context; cancelling it stops the task
//   - conn: Established connection
//
// Returns:
//   - *Task: Running task
//   - error: If the subscription cannot be created
func (p *Push) Start(ctx context.Context, conn instrument.Conn) (*Task, error) {
	if conn == nil {
		return nil, ErrNilConn
	}

	sub, err := conn.Subscribe(ctx, p.period, p.attrs.Addresses())
	if err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}

	task, taskCtx := newTask(ctx, ModePush)
	go p.run(taskCtx, task, sub)

	p.logger.Info("push acquisition started",
		"period", p.period,
		"attributes", p.attrs.Len(),
	)
	return task, nil
}

func (p *Push) run(ctx context.Context, task *Task, sub instrument.Subscription) {
	defer close(task.done)
	defer p.teardown(ctx, sub)

	notifications := sub.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				p.logger.Warn("subscription stream closed by transport")
				task.fail(ErrSubscriptionClosed)
				return
			}
			p.handle(n)
		}
	}
}

// handle resolves and applies one notification. A panic while handling is
// logged and the notification dropped; the subscription keeps running.
func (p *Push) handle(n instrument.Notification) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in change handler", "panic", r)
		}
	}()

	received := p.now().UTC()
	batch := telemetry.Batch{
		Source:     telemetry.SourcePush,
		CapturedAt: received,
		Samples:    make([]telemetry.Sample, 0, len(n.Changes)),
	}
	for _, change := range n.Changes {
		attr, ok := p.attrs.Attribute(change.Address)
		if !ok {
			p.logger.Debug("change for unmapped address", "address", change.Address)
			continue
		}
		batch.Samples = append(batch.Samples, telemetry.Sample{
			Attribute: attr,
			Value:     change.Value,
			Timestamp: received,
		})
	}
	p.pipeline.Apply(batch)
}

// teardown deletes the server-side subscription. Failures are logged only.
func (p *Push) teardown(ctx context.Context, sub instrument.Subscription) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	if err := sub.Cancel(cancelCtx); err != nil {
		p.logger.Warn("deleting subscription failed",
			"error", fmt.Errorf("%w: %w", instrument.ErrTeardown, err),
		)
	}
}
