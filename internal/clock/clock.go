// Package clock provides the time sources used by the sync engine.
//
// Two kinds of time are kept apart:
//
//   - Wall time (Clock) drives status evaluation and signal timestamps.
//     Status is always computed from an injected Clock so tests and
//     scenarios can advance time deterministically.
//   - Sequence numbers (Sequence) order snapshot versions. A snapshot's
//     Version comes from a monotonic counter, never from wall time.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by time.Now.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a settable Clock for tests and scenario runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock frozen at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

// Now returns the frozen time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
// Negative durations are ignored; manual time never goes backwards.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now = m.now.Add(d)
	}
	return m.now
}

// Set jumps the clock to t if t is not before the current time.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.After(m.now) {
		m.now = t.UTC()
	}
}

// Sequence is a monotonic counter for snapshot versions.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
// The engine's single-writer loop is normally the only caller of Next.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a counter starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a counter resuming from a persisted version.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
// Calls are linearizable - each call returns a unique, increasing value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued sequence number without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
