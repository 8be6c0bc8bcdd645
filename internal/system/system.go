package system

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/logging"
	"github.com/nvandessel/cogloop/internal/numdict"
)

// Options configures a System.
type Options struct {
	// TimeLimit stops the clock; zero means no limit.
	TimeLimit time.Duration
	// CascadeLimit caps the events processed at one simulated instant;
	// zero means no cap.
	CascadeLimit int
	// Settle lets processes skip recomputations whose result is within
	// Epsilon of the current value.
	Settle  bool
	Epsilon float64
	// Seed seeds the random source shared by stochastic processes.
	Seed uint64
}

// Observer receives every processed event before processes resolve it.
// ctx is the context of the run driving the system.
type Observer interface {
	OnEvent(ctx context.Context, ev Event) error
}

// System owns the clock, the event queue and the registered processes.
// It is not safe for concurrent use.
type System struct {
	root      *knowledge.Node
	opts      Options
	logger    *slog.Logger
	rng       *rand.PCG
	clock     Clock
	queue     eventQueue
	seq       uint64
	procs     []Process
	names     map[string]bool
	observers []Observer

	instant time.Duration
	burst   int
}

// New creates a system over the namespace root. A nil logger discards.
func New(root *knowledge.Node, opts Options, logger *slog.Logger) *System {
	if logger == nil {
		logger = logging.Discard()
	}
	return &System{
		root:    root,
		opts:    opts,
		logger:  logger,
		rng:     rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15),
		clock:   Clock{limit: opts.TimeLimit},
		names:   make(map[string]bool),
		instant: -1,
	}
}

// Root returns the system namespace.
func (s *System) Root() *knowledge.Node { return s.root }

// Options returns the system configuration.
func (s *System) Options() Options { return s.opts }

// Logger returns the system logger.
func (s *System) Logger() *slog.Logger { return s.logger }

// Rand returns the seeded random source.
func (s *System) Rand() rand.Source { return s.rng }

// Clock returns the simulated clock.
func (s *System) Clock() *Clock { return &s.clock }

// Now returns the current simulated time.
func (s *System) Now() time.Duration { return s.clock.now }

// Index returns the index of form in the system namespace.
func (s *System) Index(form numdict.KeyForm) numdict.Index {
	return numdict.NewIndex(s.root, form)
}

// CheckRoot verifies that every node belongs to the system namespace.
func (s *System) CheckRoot(nodes ...*knowledge.Node) error {
	for _, n := range nodes {
		if n == nil || n.Root() != s.root {
			return fmt.Errorf("%v: %w", n, ErrRootMismatch)
		}
	}
	return nil
}

// Register adds p to the set of processes notified of every event.
// Processes are notified in registration order.
func (s *System) Register(p Process) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("register: empty process name")
	}
	if s.names[name] {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateProcess)
	}
	s.names[name] = true
	s.procs = append(s.procs, p)
	return nil
}

// Processes returns the registered processes.
func (s *System) Processes() []Process { return append([]Process(nil), s.procs...) }

// Observe adds an observer.
func (s *System) Observe(o Observer) { s.observers = append(s.observers, o) }

// Schedule enqueues an event at now+dt.
func (s *System) Schedule(src Source, dt time.Duration, priority Priority, updates ...Update) error {
	if dt < 0 {
		return fmt.Errorf("schedule %s at %v: %w", src, dt, ErrPastEvent)
	}
	ev := Event{
		Time:     s.clock.now + dt,
		Source:   src,
		Updates:  append([]Update(nil), updates...),
		Priority: priority,
		Seq:      s.seq,
	}
	s.seq++
	heap.Push(&s.queue, ev)
	return nil
}

// ScheduleUser enqueues updates from outside any process at maximum
// priority.
func (s *System) ScheduleUser(dt time.Duration, updates ...Update) error {
	return s.Schedule(UserSource, dt, PriorityMax, updates...)
}

// Pending returns the number of queued events.
func (s *System) Pending() int { return len(s.queue) }

// Clear discards every pending event.
func (s *System) Clear() {
	if n := len(s.queue); n > 0 {
		s.logger.Debug("queue cleared", "discarded", n, "time", s.clock.now)
	}
	s.queue = s.queue[:0]
}

// Advance processes the next event: it advances the clock, applies the
// event's updates, notifies observers and resolves every process.
func (s *System) Advance() (Event, error) { return s.advance(context.Background()) }

func (s *System) advance(ctx context.Context) (Event, error) {
	if len(s.queue) == 0 {
		return Event{}, ErrEmptyQueue
	}
	if next := s.queue[0]; s.clock.limit > 0 && next.Time > s.clock.limit {
		return Event{}, fmt.Errorf("event %s at %v: %w", next.Source, next.Time, ErrTimeLimit)
	}
	ev := heap.Pop(&s.queue).(Event)
	if err := s.clock.advance(ev.Time); err != nil {
		return ev, err
	}

	if ev.Time == s.instant {
		s.burst++
	} else {
		s.instant, s.burst = ev.Time, 1
	}
	if limit := s.opts.CascadeLimit; limit > 0 && s.burst > limit {
		return ev, fmt.Errorf("%d events at %v, last from %s: %w", s.burst, ev.Time, ev.Source, ErrCascade)
	}

	trace := s.logger.Enabled(ctx, logging.LevelTrace)
	for _, u := range ev.Updates {
		if err := u.Apply(); err != nil {
			return ev, fmt.Errorf("apply %s: %w", ev.Source, err)
		}
		if trace {
			s.logger.Log(ctx, logging.LevelTrace, "update applied", "update", u.String())
		}
	}
	s.logger.Debug("event",
		"time", ev.Time,
		"source", ev.Source.String(),
		"priority", ev.Priority.String(),
		"seq", ev.Seq,
		"updates", len(ev.Updates))

	for _, o := range s.observers {
		if err := o.OnEvent(ctx, ev); err != nil {
			return ev, fmt.Errorf("observe %s: %w", ev.Source, err)
		}
	}
	for _, p := range s.procs {
		if err := p.Resolve(ev); err != nil {
			return ev, fmt.Errorf("resolve %s in %s: %w", ev.Source, p.Name(), err)
		}
	}
	return ev, nil
}

// RunAll advances until the queue drains or the clock limit is reached.
func (s *System) RunAll(ctx context.Context) error {
	_, _, err := s.RunUntil(ctx, nil)
	return err
}

// RunUntil advances until stop reports true for a processed event, the
// queue drains, or the clock limit is reached. It returns the matching
// event and whether one was found.
func (s *System) RunUntil(ctx context.Context, stop func(Event) bool) (Event, bool, error) {
	for len(s.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return Event{}, false, err
		}
		ev, err := s.advance(ctx)
		if errors.Is(err, ErrTimeLimit) {
			return Event{}, false, nil
		}
		if err != nil {
			return Event{}, false, err
		}
		if stop != nil && stop(ev) {
			return ev, true, nil
		}
	}
	return Event{}, false, nil
}

// Settled reports whether settle gating is on and next is within Epsilon
// of the site's current value.
func (s *System) Settled(site *Site, next numdict.NumDict) bool {
	return s.opts.Settle && site.Current().Equal(next, s.opts.Epsilon)
}
