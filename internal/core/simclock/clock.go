// Package simclock provides the simulation time source: an epoch advanced by
// wall time scaled with a warp factor.
package simclock

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var (
	ErrNegativeWarp = errors.New("simclock: warp must be finite and not negative")
	ErrWarpTooLarge = errors.New("simclock: warp too large")
)

// MaxWarp is the fastest supported rate, 2^45 simulated seconds per second.
const MaxWarp = 1 << 45

// maxAdvance caps a single advance so the instant stays representable.
const maxAdvance = 1 << 60 // seconds

// Clock is safe for concurrent use.
type Clock struct {
	mu     sync.Mutex
	wall   func() time.Time
	anchor time.Time // simulation instant at wallAt
	wallAt time.Time
	warp   float64
	last   time.Time
}

// Option configures a Clock.
type Option func(*Clock)

// WithWallClock replaces time.Now, mostly for tests.
func WithWallClock(now func() time.Time) Option {
	return func(c *Clock) { c.wall = now }
}

// New starts a clock at start, running warp times faster than wall time.
func New(start time.Time, warp float64, opts ...Option) (*Clock, error) {
	if err := checkWarp(warp); err != nil {
		return nil, err
	}
	c := &Clock{wall: time.Now, warp: warp}
	for _, opt := range opts {
		opt(c)
	}
	c.anchor = start.UTC()
	c.wallAt = c.wall()
	c.last = c.anchor
	return c, nil
}

func checkWarp(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeWarp, w)
	}
	if w > MaxWarp {
		return fmt.Errorf("%w: %v exceeds %v", ErrWarpTooLarge, w, float64(MaxWarp))
	}
	return nil
}

// Now returns the current simulation instant. Successive calls never go back
// in time, even when the wall clock does.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() time.Time {
	elapsed := c.wall().Sub(c.wallAt)
	t := advance(c.anchor, elapsed, c.warp)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// advance returns from + warp*elapsed. Advances that do not fit a
// time.Duration are applied in whole seconds plus a nanosecond remainder.
func advance(from time.Time, elapsed time.Duration, warp float64) time.Time {
	ns := float64(elapsed) * warp
	if math.Abs(ns) < math.MaxInt64/2 {
		return from.Add(time.Duration(ns))
	}
	secs := elapsed.Seconds() * warp
	secs = math.Max(math.Min(secs, maxAdvance), -maxAdvance)
	whole, frac := math.Modf(secs)
	return time.Unix(from.Unix()+int64(whole), int64(from.Nanosecond())+int64(math.Round(frac*1e9))).UTC()
}

func (c *Clock) Warp() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warp
}

// SetWarp changes the rate from the current instant on.
func (c *Clock) SetWarp(warp float64) error {
	if err := checkWarp(warp); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = c.nowLocked()
	c.wallAt = c.wall()
	c.warp = warp
	return nil
}

// Set jumps to t. Jumping backwards is allowed and resets the monotonic floor.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = t.UTC()
	c.wallAt = c.wall()
	c.last = c.anchor
}
