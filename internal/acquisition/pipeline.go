// Package acquisition runs the two telemetry acquisition strategies and
// routes every observed batch into the snapshot, the history store and any
// registered export sinks.
//
// Push subscribes to server-side change notifications. Poll reads every
// mapped address on a fixed cadence. Both produce telemetry.Batch values
// that the Pipeline applies in one step per store.
package acquisition

import (
	"sync"
	"sync/atomic"

	"github.com/si3lab/lidarlink/internal/entity"
	"github.com/si3lab/lidarlink/internal/history"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

// Logger defines the logging interface for the acquisition engine.
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

// Sink receives every batch after it has been applied to the snapshot and
// the history store. Consume runs on the acquisition goroutine and must not
// block; slow consumers should queue internally.
type Sink interface {
	Consume(batch telemetry.Batch)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(batch telemetry.Batch)

// Consume calls f(batch).
func (f SinkFunc) Consume(batch telemetry.Batch) {
	f(batch)
}

type namedSink struct {
	name string
	sink Sink
}

// PipelineStats counts what the pipeline has processed.
type PipelineStats struct {
	Batches uint64 `json:"batches"`
	Samples uint64 `json:"samples"`
	Unknown uint64 `json:"unknown"`
	Panics  uint64 `json:"sink_panics"`
}

// Pipeline fans a batch out to the projector, the history store and the
// registered sinks, in that order.
//
// Thread Safety:
//   - Apply may be called concurrently with AddSink and Stats.
//   - Only one acquisition task calls Apply at a time.
type Pipeline struct {
	projector *entity.Projector
	store     *history.Store

	mu     sync.RWMutex
	sinks  []namedSink
	logger Logger

	batches atomic.Uint64
	samples atomic.Uint64
	unknown atomic.Uint64
	panics  atomic.Uint64
}

// NewPipeline creates a pipeline writing into projector and store.
func NewPipeline(projector *entity.Projector, store *history.Store) *Pipeline {
	return &Pipeline{
		projector: projector,
		store:     store,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}

// AddSink registers a named sink. Names only appear in logs.
func (p *Pipeline) AddSink(name string, sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, namedSink{name: name, sink: sink})
}

// Apply applies one batch to every store and sink.
func (p *Pipeline) Apply(batch telemetry.Batch) {
	if batch.Len() == 0 {
		return
	}

	p.mu.RLock()
	logger := p.logger
	sinks := p.sinks
	p.mu.RUnlock()

	applied, unknown := p.projector.Apply(batch)
	if len(unknown) > 0 {
		p.unknown.Add(uint64(len(unknown)))
		logger.Debug("skipping unknown attributes", "attributes", unknown)
	}
	p.store.AppendBatch(batch)

	p.batches.Add(1)
	p.samples.Add(uint64(applied))

	for _, s := range sinks {
		p.consume(logger, s, batch)
	}
}

// consume delivers to one sink and contains any panic, so a faulty sink
// cannot take the acquisition loop down.
func (p *Pipeline) consume(logger Logger, s namedSink, batch telemetry.Batch) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			logger.Error("panic in telemetry sink",
				"sink", s.name,
				"panic", r,
			)
		}
	}()
	s.sink.Consume(batch)
}

// Stats returns processing counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Batches: p.batches.Load(),
		Samples: p.samples.Load(),
		Unknown: p.unknown.Load(),
		Panics:  p.panics.Load(),
	}
}
