// Package entity holds the typed in-memory snapshot of the instrument and
// the projector that writes protocol values into it.
//
// The projector is the only writer. Readers receive copies, so a snapshot
// handed to the API can never change under the caller.
package entity

import (
	"fmt"
	"sync"
	"time"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

// Field is one populated snapshot field.
type Field struct {
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is a point-in-time copy of the instrument state. Attributes that
// have never been observed are absent from Fields.
type Snapshot struct {
	Fields    map[string]Field `json:"fields"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Get returns the value of name. The lookup uses the canonical attribute
// spelling as stored in Fields.
func (s Snapshot) Get(name string) (any, bool) {
	f, ok := s.Fields[name]
	if !ok {
		return nil, false
	}
	return f.Value, true
}

// Values flattens the snapshot to attribute -> value.
func (s Snapshot) Values() map[string]any {
	out := make(map[string]any, len(s.Fields))
	for name, f := range s.Fields {
		out[name] = f.Value
	}
	return out
}

// Projector maps incoming values onto the snapshot.
//
// Names are case-folded against the attribute schema, so "heartbeat" and
// "HEARTBEAT" address the same field. Values are stored exactly as given:
// the declared kind is never used to coerce.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Projector struct {
	attrs *attribute.Map

	mu        sync.RWMutex
	fields    map[string]Field
	updatedAt time.Time
	now       func() time.Time
}

// NewProjector creates a projector over the given schema with an empty snapshot.
func NewProjector(attrs *attribute.Map) *Projector {
	return &Projector{
		attrs:  attrs,
		fields: make(map[string]Field, attrs.Len()),
		now:    time.Now,
	}
}

// Set writes one field.
//
// Parameters:
//   - name: Attribute name, matched case-insensitively
//   - value: Native value, stored unchanged (nil clears nothing and is stored as nil)
//
// Returns:
//   - error: ErrUnknownAttribute if no field matches
func (p *Projector) Set(name string, value any) error {
	canonical, ok := p.attrs.Canonical(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()
	p.fields[canonical] = Field{Value: value, UpdatedAt: now}
	p.updatedAt = now
	return nil
}

// Update applies a name -> value mapping in one critical section. Entries
// with an unknown name or a nil value are skipped.
//
// Returns:
//   - int: Number of fields written
func (p *Projector) Update(values map[string]any) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()
	applied := 0
	for name, value := range values {
		if value == nil {
			continue
		}
		canonical, ok := p.attrs.Canonical(name)
		if !ok {
			continue
		}
		p.fields[canonical] = Field{Value: value, UpdatedAt: now}
		applied++
	}
	if applied > 0 {
		p.updatedAt = now
	}
	return applied
}

// Apply writes every sample of a batch under one lock, so a reader never
// sees half a poll tick. Unknown attributes and nil values are skipped and
// their names returned for logging.
//
// Returns:
//   - int: Number of fields written
//   - []string: Names that did not match the schema
func (p *Projector) Apply(batch telemetry.Batch) (int, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var unknown []string
	applied := 0
	for _, sample := range batch.Samples {
		if sample.Value == nil {
			continue
		}
		canonical, ok := p.attrs.Canonical(sample.Attribute)
		if !ok {
			unknown = append(unknown, sample.Attribute)
			continue
		}
		ts := sample.Timestamp
		if ts.IsZero() {
			ts = batch.CapturedAt
		}
		if ts.IsZero() {
			ts = p.now()
		}
		ts = ts.UTC()
		p.fields[canonical] = Field{Value: sample.Value, UpdatedAt: ts}
		if ts.After(p.updatedAt) {
			p.updatedAt = ts
		}
		applied++
	}
	return applied, unknown
}

// Get returns the current value of one attribute (case-insensitive).
func (p *Projector) Get(name string) (any, bool) {
	canonical, ok := p.attrs.Canonical(name)
	if !ok {
		return nil, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	f, ok := p.fields[canonical]
	return f.Value, ok
}

// Snapshot returns a copy of the current state.
func (p *Projector) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	fields := make(map[string]Field, len(p.fields))
	for name, f := range p.fields {
		fields[name] = f
	}
	return Snapshot{Fields: fields, UpdatedAt: p.updatedAt}
}
