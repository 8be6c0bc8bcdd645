// Package system implements the discrete-event scheduler: a simulated
// clock, a priority queue of events carrying site updates, and the
// broadcast of every processed event to the registered processes.
//
// Sites are the only mutable state. A process computes its next value from
// the sites it reads and schedules an Update; the update is applied when
// the event is popped, and every process then sees the event through
// Resolve and may schedule more work.
package system

import "errors"

var (
	// ErrWiring is returned when sites with incompatible forms or defaults
	// are connected.
	ErrWiring = errors.New("incompatible wiring")

	// ErrCascade is returned when more events than the configured limit
	// are processed at a single simulated instant.
	ErrCascade = errors.New("cascade limit exceeded")

	// ErrTimeLimit is returned when an event lies beyond the clock limit.
	ErrTimeLimit = errors.New("time limit exceeded")

	// ErrPastEvent is returned when an event would move the clock backward.
	ErrPastEvent = errors.New("event precedes current time")

	// ErrDuplicateProcess is returned when a process name is registered twice.
	ErrDuplicateProcess = errors.New("duplicate process name")

	// ErrRootMismatch is returned when a node belongs to a different namespace.
	ErrRootMismatch = errors.New("node outside system namespace")

	// ErrEmptyQueue is returned by Advance when nothing is scheduled.
	ErrEmptyQueue = errors.New("no pending events")
)
