// Package clock supplies report timestamps.
//
// Pipeline stages never read the wall clock directly. They take a Clock so
// tests can pin created_at and durations, the same way generation is pinned
// by its seed.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Wall is the real UTC clock.
type Wall struct{}

// Now implements Clock.
func (Wall) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a deterministic clock for tests. Every call to Now advances the
// clock by Step, so measured durations are exact multiples of Step.
//
// Thread-safety: all methods are safe for concurrent use.
type Fixed struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewFixed creates a clock whose first Now returns start.
func NewFixed(start time.Time, step time.Duration) *Fixed {
	return &Fixed{now: start.UTC(), Step: step}
}

// Now implements Clock.
func (c *Fixed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Set moves the clock to t.
func (c *Fixed) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
