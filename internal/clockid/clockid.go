// Package clockid provides the time and identifier primitives the rest of
// the core depends on, so that rate-limit and adaptive-throttle tests can
// substitute a fake clock instead of sleeping real wall-clock seconds.
package clockid

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time. Production code uses RealClock; tests
// that need to advance time deterministically (e.g. the adaptive-restoration
// scenario in spec §8.6) use a fake implementation.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual system time.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// FakeClock is a manually-advanced clock for deterministic tests.
type FakeClock struct {
	now time.Time
}

// NewFakeClock creates a FakeClock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the fake clock's current time.
func (c *FakeClock) Now() time.Time { return c.now }

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// NewID returns a new random unique identifier, used for sliding-window
// members, tool-call correlation, and trace IDs.
func NewID() string {
	return uuid.NewString()
}
