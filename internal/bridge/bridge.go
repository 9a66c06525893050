package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/control"
	"github.com/si3lab/lidarlink/internal/entity"
	"github.com/si3lab/lidarlink/internal/infrastructure/mqtt"
	"github.com/si3lab/lidarlink/internal/session"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

const (
	// defaultStateInterval is how often the retained snapshot is republished.
	defaultStateInterval = 30 * time.Second

	// outboxSize bounds messages waiting for the broker.
	outboxSize = 256

	// commandSource tags commands received from the broker.
	commandSource = "mqtt"
)

// Client is the part of mqtt.Client the bridge uses.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Session is the part of session.Manager the bridge uses.
type Session interface {
	Submit(cmd session.Command) (string, error)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	Client    Client
	Topics    mqtt.Topics
	QoS       byte
	Session   Session
	Catalogue *control.Catalogue
	Attrs     *attribute.Map
	Projector *entity.Projector

	// StateInterval is the snapshot republish period. Default: 30s
	StateInterval time.Duration

	// PublishAttributes also publishes each sample on its attribute topic.
	PublishAttributes bool

	// Commands enables the {prefix}/command subscription.
	Commands bool
}

// Stats counts bridge traffic.
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Commands  uint64 `json:"commands"`
	Rejected  uint64 `json:"rejected"`
}

type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// Bridge publishes telemetry, snapshots, session state and command results
// to MQTT and feeds remote commands into the session.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts   Options
	outbox chan outbound
	now    func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	commands  atomic.Uint64
	rejected  atomic.Uint64
}

// NewBridge creates a bridge. It publishes nothing until Start is called.
//
// Parameters:
//   - opts: Client, Session, Catalogue, Attrs and Projector are required
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If a required option is missing
func NewBridge(opts Options) (*Bridge, error) {
	switch {
	case opts.Client == nil:
		return nil, fmt.Errorf("mqtt client is required")
	case opts.Session == nil:
		return nil, fmt.Errorf("session is required")
	case opts.Catalogue == nil:
		return nil, fmt.Errorf("control catalogue is required")
	case opts.Attrs == nil:
		return nil, fmt.Errorf("attribute map is required")
	case opts.Projector == nil:
		return nil, fmt.Errorf("projector is required")
	}
	if opts.StateInterval <= 0 {
		opts.StateInterval = defaultStateInterval
	}

	return &Bridge{
		opts:   opts,
		outbox: make(chan outbound, outboxSize),
		now:    time.Now,
		done:   make(chan struct{}),
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Start subscribes to the command topic (when enabled) and starts the
// publisher and snapshot loops. The loops run until Stop, not until ctx
// ends, so transitions observed during shutdown are still published.
func (b *Bridge) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.opts.Commands {
		topic := b.opts.Topics.Command()
		if err := b.opts.Client.Subscribe(topic, b.opts.QoS, b.HandleCommand); err != nil {
			return fmt.Errorf("subscribe to commands: %w", err)
		}
		b.getLogger().Info("subscribed to commands", "topic", topic)
	}

	b.wg.Add(2)
	go b.publishLoop()
	go b.stateLoop()

	b.getLogger().Info("bridge started",
		"prefix", b.opts.Topics.AllTopics(),
		"state_interval", b.opts.StateInterval,
	)
	return nil
}

// Stop stops the loops and publishes what is still queued.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		b.getLogger().Info("bridge stopped")
	})
}

// Consume implements acquisition.Sink.
func (b *Bridge) Consume(batch telemetry.Batch) {
	b.enqueueJSON(b.opts.Topics.Telemetry(), batch, b.opts.QoS, false)

	if !b.opts.PublishAttributes {
		return
	}
	for _, s := range batch.Samples {
		name, ok := b.opts.Attrs.Canonical(s.Attribute)
		if !ok {
			continue
		}
		b.enqueueJSON(b.opts.Topics.Attribute(name), AttributeMessage{Value: s.Value, Timestamp: s.Timestamp}, b.opts.QoS, true)
	}
}

// ObserveTransition is a session state observer.
func (b *Bridge) ObserveTransition(t session.Transition) {
	b.enqueueJSON(b.opts.Topics.Session(), SessionMessage{
		State:  t.To,
		From:   t.From,
		Reason: t.Reason(),
		At:     t.At,
	}, b.opts.QoS, true)
}

// ObserveCommand is a session command observer.
func (b *Bridge) ObserveCommand(cmd session.Command, res session.Result) {
	b.enqueueJSON(b.opts.Topics.CommandResult(), newResultMessage(cmd, res, b.now()), b.opts.QoS, false)
}

// HandleCommand decodes a command message, resolves it and submits it.
// Rejections are answered on the result topic and returned for logging.
func (b *Bridge) HandleCommand(_ string, payload []byte) error {
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		b.reject(msg, err)
		return err
	}
	if !b.opts.Commands {
		b.reject(msg, ErrCommandsDisabled)
		return ErrCommandsDisabled
	}

	cmd, err := b.opts.Catalogue.Build(msg.Request)
	if err != nil {
		b.reject(msg, err)
		return err
	}
	cmd.ID = msg.ID
	cmd.Source = commandSource

	id, err := b.opts.Session.Submit(cmd)
	if err != nil {
		b.reject(msg, err)
		return fmt.Errorf("submit %s: %w", cmd.Kind, err)
	}

	b.commands.Add(1)
	b.getLogger().Debug("mqtt command queued", "id", id, "kind", cmd.Kind, "name", cmd.Name)
	return nil
}

// reject publishes a result for a command that never reached the session.
func (b *Bridge) reject(msg CommandMessage, err error) {
	b.rejected.Add(1)
	b.enqueueJSON(b.opts.Topics.CommandResult(), ResultMessage{
		ID:        msg.ID,
		Kind:      msg.Kind,
		Name:      msg.Name,
		Source:    commandSource,
		Status:    StatusRejected,
		Error:     err.Error(),
		Timestamp: b.now().UTC(),
	}, b.opts.QoS, false)
}

// PublishState queues the current snapshot on the retained state topic.
func (b *Bridge) PublishState() {
	dto := entity.ToDTO(b.opts.Attrs, b.opts.Projector.Snapshot(), b.now())
	b.enqueueJSON(b.opts.Topics.State(), dto, b.opts.QoS, true)
}

// Stats returns traffic counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Failed:    b.failed.Load(),
		Dropped:   b.dropped.Load(),
		Commands:  b.commands.Load(),
		Rejected:  b.rejected.Load(),
	}
}

// enqueueJSON marshals v and queues it without blocking. A full outbox
// drops the message.
func (b *Bridge) enqueueJSON(topic string, v any, qos byte, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.getLogger().Error("marshal mqtt payload", "topic", topic, "error", err)
		return
	}
	select {
	case b.outbox <- outbound{topic: topic, payload: payload, qos: qos, retained: retained}:
	default:
		if b.dropped.Add(1)%outboxSize == 1 {
			b.getLogger().Warn("mqtt outbox full, dropping messages", "dropped", b.dropped.Load())
		}
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()

	for {
		select {
		case m := <-b.outbox:
			b.publish(m)
		case <-b.done:
			b.drain()
			return
		}
	}
}

// drain publishes what is queued at shutdown while the broker is reachable.
func (b *Bridge) drain() {
	for {
		select {
		case m := <-b.outbox:
			if !b.opts.Client.IsConnected() {
				b.dropped.Add(1)
				continue
			}
			b.publish(m)
		default:
			return
		}
	}
}

func (b *Bridge) publish(m outbound) {
	if err := b.opts.Client.Publish(m.topic, m.payload, m.qos, m.retained); err != nil {
		b.failed.Add(1)
		if !errors.Is(err, mqtt.ErrNotConnected) {
			b.getLogger().Warn("mqtt publish failed", "topic", m.topic, "error", err)
		}
		return
	}
	b.published.Add(1)
}

func (b *Bridge) stateLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.StateInterval)
	defer ticker.Stop()

	b.PublishState()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.PublishState()
		}
	}
}
