package engine

import "sync/atomic"

// Clock is the block height counter.
//
// Each committed block takes the next height from the clock. Heights are
// strictly increasing and start at 1. The clock never reads wall time;
// block times come from the engine's time source.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Only the writer calls Next; Status and Blocks read Current.
type Clock struct {
	height atomic.Uint64
}

// NewClock creates a clock at height 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at a specific height.
// Used to resume after replay.
func NewClockAt(height uint64) *Clock {
	c := &Clock{}
	c.height.Store(height)
	return c
}

// Next returns the next height and advances the clock.
func (c *Clock) Next() uint64 {
	return c.height.Add(1)
}

// Current returns the height of the last committed block.
func (c *Clock) Current() uint64 {
	return c.height.Load()
}
