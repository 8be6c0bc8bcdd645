package system

import (
	"fmt"
	"time"
)

// Clock tracks simulated time. A zero limit means no limit.
type Clock struct {
	now   time.Duration
	limit time.Duration
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Duration { return c.now }

// Limit returns the configured limit.
func (c *Clock) Limit() time.Duration { return c.limit }

// HasTime reports whether the clock is within its limit.
func (c *Clock) HasTime() bool { return c.limit == 0 || c.now <= c.limit }

func (c *Clock) advance(t time.Duration) error {
	if t < c.now {
		return fmt.Errorf("advance to %v at %v: %w", t, c.now, ErrPastEvent)
	}
	if c.limit > 0 && t > c.limit {
		return fmt.Errorf("advance to %v past %v: %w", t, c.limit, ErrTimeLimit)
	}
	c.now = t
	return nil
}
