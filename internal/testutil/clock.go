package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a manual time source for tests.
//
// Now returns the current time and then advances it by the step, so a
// sequence of batches gets evenly spaced, reproducible block times. With a
// zero step the time moves only through Advance and Set.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock at the given Unix millisecond time
// that advances by step after every reading.
func NewDeterministicClock(startMS int64, step time.Duration) *DeterministicClock {
	return &DeterministicClock{now: time.UnixMilli(startMS).UTC(), step: step}
}

// Now returns the current time and advances the clock by the step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the current time without advancing.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to the given Unix millisecond time.
func (c *DeterministicClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(ms).UTC()
}
