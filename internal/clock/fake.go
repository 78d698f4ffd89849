// ABOUTME: Deterministic Clock for tests
// ABOUTME: Time moves only through Advance, Set, or Sleep (which advances by its duration)

package clock

import (
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Sleep returns immediately after
// moving the clock forward by the requested duration, so code under test
// observes the elapsed time without the test waiting for it.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	slept   time.Duration
	sleeps  int
}

// Fake returns a FakeClock initialized to the given time.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial.UTC()}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Sleep advances the clock by d and returns.
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.current = c.current.Add(d)
		c.slept += d
	}
	c.sleeps++
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set jumps the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t.UTC()
}

// Slept returns the total duration passed to Sleep and the number of calls.
func (c *FakeClock) Slept() (time.Duration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept, c.sleeps
}
