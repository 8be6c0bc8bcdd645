package system

import (
	"strconv"
	"time"
)

// Priority orders events scheduled for the same simulated time. Higher
// priorities are processed first.
type Priority int

const (
	PriorityMin         Priority = 0
	PriorityDeferred    Priority = 32
	PriorityPropagation Priority = 64
	PriorityLearning    Priority = 96
	PriorityChoice      Priority = 112
	PriorityParam       Priority = 120
	PriorityMax         Priority = 128
)

func (p Priority) String() string {
	switch p {
	case PriorityMin:
		return "min"
	case PriorityDeferred:
		return "deferred"
	case PriorityPropagation:
		return "propagation"
	case PriorityLearning:
		return "learning"
	case PriorityChoice:
		return "choice"
	case PriorityParam:
		return "param"
	case PriorityMax:
		return "max"
	}
	return strconv.Itoa(int(p))
}

// ScheduleOption adjusts the delay or priority of a scheduled update.
type ScheduleOption func(*timing)

type timing struct {
	dt       time.Duration
	priority Priority
}

// After delays an update by dt of simulated time.
func After(dt time.Duration) ScheduleOption {
	return func(t *timing) { t.dt = dt }
}

// WithPriority overrides the default priority of an update.
func WithPriority(p Priority) ScheduleOption {
	return func(t *timing) { t.priority = p }
}

// Timing resolves schedule options against a default priority.
func Timing(def Priority, opts ...ScheduleOption) (time.Duration, Priority) {
	t := timing{priority: def}
	for _, opt := range opts {
		opt(&t)
	}
	return t.dt, t.priority
}
