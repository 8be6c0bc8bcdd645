package system

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the process and operation that scheduled an event.
type Source struct {
	Proc string
	Op   string
}

func (s Source) String() string {
	if s.Proc == "" {
		return s.Op
	}
	return s.Proc + "." + s.Op
}

// UserSource marks updates scheduled from outside any process.
var UserSource = Source{Op: "user"}

// Event is an immutable batch of updates scheduled for one simulated time.
type Event struct {
	Time     time.Duration
	Source   Source
	Updates  []Update
	Priority Priority
	Seq      uint64
}

// From reports whether the event was scheduled by src.
func (e Event) From(src Source) bool { return e.Source == src }

// Touches reports whether the event writes site. Sort updates grow an
// index without changing any value, so they do not count.
func (e Event) Touches(site *Site) bool {
	for _, u := range e.Updates {
		if su, ok := u.(*SiteUpdate); ok && su.Affects(site) {
			return true
		}
	}
	return false
}

func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v %s #%d (%s)", e.Time, e.Source, e.Seq, e.Priority)
	for _, u := range e.Updates {
		fmt.Fprintf(&b, "\n    %s", u)
	}
	return b.String()
}

// before orders events by time, then priority (high first), then sequence.
func (e Event) before(o Event) bool {
	if e.Time != o.Time {
		return e.Time < o.Time
	}
	if e.Priority != o.Priority {
		return e.Priority > o.Priority
	}
	return e.Seq < o.Seq
}

// eventQueue implements heap.Interface.
type eventQueue []Event

func (q eventQueue) Len() int           { return len(q) }
func (q eventQueue) Less(i, j int) bool { return q[i].before(q[j]) }
func (q eventQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(Event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = Event{}
	*q = old[:n-1]
	return ev
}
