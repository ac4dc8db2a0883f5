package kclock

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is a monotonic logical clock whose per-tick advance
// is clamped to a maximum step.
//
// A Clock is owned by exactly one goroutine and is not internally locked.
// Callers that must share one (such as a frame watchdog read from two
// goroutines) are responsible for their own synchronization.
type Clock struct {
	src clock.Clock

	accumulated time.Duration
	lastReal    time.Time
	maxStep     time.Duration
}

// New returns a Clock reading the real time source,
// with each tick's advance clamped to maxStep.
func New(maxStep time.Duration) *Clock {
	return NewWithSource(maxStep, clock.New())
}

// NewWithSource is like [New] but reads time from src.
// Tests use this with a [clock.Mock] to drive the clamp deterministically.
func NewWithSource(maxStep time.Duration, src clock.Clock) *Clock {
	if maxStep <= 0 {
		panic(fmt.Errorf("kclock.NewWithSource: maxStep must be positive (got %v)", maxStep))
	}

	return &Clock{
		src:      src,
		lastReal: src.Now(),
		maxStep:  maxStep,
	}
}

// Tick reads the real clock and advances the accumulated time by
// min(real delta, max step).
// A real clock regression (delta < 0) advances the accumulated time by zero.
// The unclamped real reading always becomes the new baseline.
func (c *Clock) Tick() {
	now := c.src.Now()
	d := now.Sub(c.lastReal)
	c.lastReal = now

	if d < 0 {
		return
	}
	if d > c.maxStep {
		d = c.maxStep
	}
	c.accumulated += d
}

// Elapsed returns the accumulated logical time.
func (c *Clock) Elapsed() time.Duration {
	return c.accumulated
}

// Seconds returns the accumulated logical time as floating seconds.
func (c *Clock) Seconds() float64 {
	return c.accumulated.Seconds()
}

// MaxStep returns the configured per-tick clamp.
func (c *Clock) MaxStep() time.Duration {
	return c.maxStep
}
