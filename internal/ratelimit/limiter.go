// Package ratelimit throttles MCP tool calls with per-tool token buckets.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLimited is returned by Tools.Check when a tool's bucket is empty.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter is a token bucket per key. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // bucket capacity and initial fill
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// PerMinute returns a limiter that refills n tokens per minute and holds at
// most burst.
func PerMinute(n float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    n / 60,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket and reports whether one was there.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens reports the tokens currently available to key.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refill(key).tokens
}

func (l *Limiter) refill(key string) *bucket {
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(l.burst, b.tokens+l.rate*elapsed)
		b.last = now
	}
	return b
}

// Tools maps MCP tool names to their limiters. Tools without an entry are
// never limited.
type Tools map[string]*Limiter

// DefaultTools returns the limits for the tools that mutate the simulation.
// Read-only tools (poll, status) are unlimited.
func DefaultTools() Tools {
	return Tools{
		"cogloop_send":  PerMinute(600, 60),
		"cogloop_run":   PerMinute(120, 20),
		"cogloop_clear": PerMinute(30, 5),
	}
}

// Check takes a token for tool and returns an error wrapping ErrLimited if
// none was available.
func (t Tools) Check(tool string) error {
	l, ok := t[tool]
	if !ok {
		return nil
	}
	if !l.Allow(tool) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrLimited, tool)
	}
	return nil
}
