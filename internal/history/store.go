// Package history keeps a retention-bounded, in-memory time series per
// attribute.
//
// One acquisition goroutine writes while any number of API handlers read.
// All state sits behind a single mutex whose critical sections are short
// and never span I/O.
//
// Pruning is lazy per series on Append and Get, and eager across every
// series when the retention window changes. At any observation every
// returned point satisfies timestamp >= now - retention.
package history

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/si3lab/lidarlink/internal/telemetry"
)

// compactThreshold is the number of dead leading slots tolerated before a
// series is copied down.
const compactThreshold = 256

// Point is one stored (timestamp, value) pair.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value"`
}

// series is an append-only slice with a moving head. Pruning advances head;
// the dead prefix is reclaimed once it dominates the slice, which keeps
// Append and prune amortised O(1).
type series struct {
	points []Point
	head   int
}

func (s *series) live() []Point {
	return s.points[s.head:]
}

func (s *series) prune(cutoff time.Time) int {
	start := s.head
	for s.head < len(s.points) && s.points[s.head].Timestamp.Before(cutoff) {
		s.points[s.head] = Point{}
		s.head++
	}
	removed := s.head - start

	if s.head == len(s.points) {
		s.points = s.points[:0]
		s.head = 0
	} else if s.head >= compactThreshold && s.head*2 >= len(s.points) {
		n := copy(s.points, s.points[s.head:])
		s.points = s.points[:n]
		s.head = 0
	}
	return removed
}

// Stats summarises the store for metrics and status endpoints.
type Stats struct {
	Series    int           `json:"series"`
	Points    int           `json:"points"`
	Retention time.Duration `json:"retention"`
	Pruned    uint64        `json:"pruned"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now. Tests use it to drive retention deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the retention-bounded history of every attribute.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Store struct {
	mu        sync.Mutex
	series    map[string]*series
	retention time.Duration
	pruned    uint64
	now       func() time.Time
}

// New creates a store with the given retention window in minutes.
//
// Parameters:
//   - retentionMinutes: Sliding window length; must not be negative
//   - opts: Optional settings such as WithClock
//
// Returns:
//   - *Store: Empty store
//   - error: ErrInvalidRetention for a negative window
func New(retentionMinutes int, opts ...Option) (*Store, error) {
	if retentionMinutes < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRetention, retentionMinutes)
	}

	s := &Store{
		series:    make(map[string]*series),
		retention: time.Duration(retentionMinutes) * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// cutoff returns the oldest timestamp still inside the window. Caller holds mu.
func (s *Store) cutoff() time.Time {
	return s.now().UTC().Add(-s.retention)
}

// appendLocked adds one point and keeps the series non-decreasing. A
// timestamp earlier than the series tail (wall clock stepped back) is
// clamped to the tail. Caller holds mu.
func (s *Store) appendLocked(attr string, value any, ts time.Time) *series {
	ser, ok := s.series[attr]
	if !ok {
		ser = &series{}
		s.series[attr] = ser
	}
	if live := ser.live(); len(live) > 0 {
		if last := live[len(live)-1].Timestamp; ts.Before(last) {
			ts = last
		}
	}
	ser.points = append(ser.points, Point{Timestamp: ts, Value: value})
	return ser
}

// Append records one value and prunes that attribute's series.
//
// Parameters:
//   - attr: Attribute name
//   - value: Native value, stored unchanged
//   - ts: Observation time; the zero value means now
func (s *Store) Append(attr string, value any, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts.IsZero() {
		ts = s.now()
	}
	ser := s.appendLocked(attr, value, ts.UTC())
	s.pruned += uint64(ser.prune(s.cutoff()))
}

// AppendBatch records every sample of a batch under one lock, so readers
// observe either none or all of a poll tick.
func (s *Store) AppendBatch(batch telemetry.Batch) {
	if batch.Len() == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.cutoff()
	touched := make(map[*series]struct{}, batch.Len())
	for _, sample := range batch.Samples {
		if sample.Value == nil {
			continue
		}
		ts := sample.Timestamp
		if ts.IsZero() {
			ts = batch.CapturedAt
		}
		if ts.IsZero() {
			ts = s.now()
		}
		touched[s.appendLocked(sample.Attribute, sample.Value, ts.UTC())] = struct{}{}
	}
	for ser := range touched {
		s.pruned += uint64(ser.prune(cutoff))
	}
}

// Get prunes the attribute's series and returns a copy ordered oldest-first.
// An attribute that was never written yields an empty, non-nil slice.
func (s *Store) Get(attr string) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[attr]
	if !ok {
		return []Point{}
	}
	s.pruned += uint64(ser.prune(s.cutoff()))

	live := ser.live()
	out := make([]Point, len(live))
	copy(out, live)
	return out
}

// Since returns the points of attr newer than after, oldest-first. Clients
// refreshing a chart use it to fetch only what they have not seen.
func (s *Store) Since(attr string, after time.Time) []Point {
	points := s.Get(attr)
	i := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp.After(after)
	})
	return points[i:]
}

// Latest returns the newest in-window point of attr.
func (s *Store) Latest(attr string) (Point, bool) {
	points := s.Get(attr)
	if len(points) == 0 {
		return Point{}, false
	}
	return points[len(points)-1], true
}

// SetRetention changes the window and prunes every series immediately.
//
// Parameters:
//   - minutes: New window length; must not be negative
//
// Returns:
//   - error: ErrInvalidRetention for a negative window
func (s *Store) SetRetention(minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetention, minutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.retention = time.Duration(minutes) * time.Minute
	cutoff := s.cutoff()
	for _, ser := range s.series {
		s.pruned += uint64(ser.prune(cutoff))
	}
	return nil
}

// Retention returns the current window.
func (s *Store) Retention() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retention
}

// Attributes returns the names of every attribute with stored history, sorted.
func (s *Store) Attributes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored points for attr without pruning.
func (s *Store) Len(attr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ser, ok := s.series[attr]; ok {
		return len(ser.live())
	}
	return 0
}

// Stats returns point counts and the cumulative number of pruned points.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Series:    len(s.series),
		Retention: s.retention,
		Pruned:    s.pruned,
	}
	for _, ser := range s.series {
		st.Points += len(ser.live())
	}
	return st
}
