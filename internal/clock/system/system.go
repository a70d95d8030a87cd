// Package system provides the clocks used to stamp stored rows.
package system

import (
	"sync"
	"time"
)

// Clock implements movie.Clock using time.Now, truncated to microseconds so
// values survive a round trip through either store.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Stepped is a deterministic clock that advances by Step on every call.
type Stepped struct {
	mu   sync.Mutex
	next time.Time
	Step time.Duration
}

// NewStepped starts a Stepped clock at start.
func NewStepped(start time.Time, step time.Duration) *Stepped {
	return &Stepped{next: start.UTC(), Step: step}
}

// Now returns the current value and advances the clock.
func (s *Stepped) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.next
	s.next = s.next.Add(s.Step)
	return now
}
