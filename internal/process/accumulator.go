package process

import (
	"fmt"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/system"
)

// AccumulatorState tracks an accumulator between clears.
type AccumulatorState int

const (
	// StateIdle: nothing accumulated since the last clear.
	StateIdle AccumulatorState = iota
	// StateAccumulating: evidence arrived but the threshold was not reached.
	StateAccumulating
	// StateCrossed: the threshold was reached. Only a clear leaves it.
	StateCrossed
)

func (s AccumulatorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateCrossed:
		return "crossed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// AccumulatorOptions configures an Accumulator.
type AccumulatorOptions struct {
	Threshold float64
}

// Accumulator integrates its input over time. Every change of the input is
// added into main; once the largest accumulated value reaches the
// threshold, each further accumulation emits an above_threshold event.
type Accumulator struct {
	system.Base
	params params
	main   *system.Site
	input  *system.Site
	state  AccumulatorState
}

// NewAccumulator creates and registers an accumulator over d*v. d may be
// nil.
func NewAccumulator(sys *system.System, name string, paramFamily, d, v *knowledge.Node, opts AccumulatorOptions) (*Accumulator, error) {
	if err := checkRoot(sys, paramFamily, d, v); err != nil {
		return nil, fmt.Errorf("accumulator %s: %w", name, err)
	}
	if err := checkThreshold(opts.Threshold); err != nil {
		return nil, fmt.Errorf("accumulator %s: %w", name, err)
	}
	idx := sys.Index(dualForm(d, v))
	p, err := newParams(sys, paramFamily, name, map[string]float64{"th": opts.Threshold}, "th")
	if err != nil {
		return nil, err
	}
	main, err := system.NewSite(idx, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("accumulator %s: %w", name, err)
	}
	input, err := system.NewSite(idx, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("accumulator %s: %w", name, err)
	}
	a := &Accumulator{Base: system.NewBase(sys, name), params: p, main: main, input: input}
	if err := sys.Register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Main returns the running total.
func (a *Accumulator) Main() *system.Site { return a.main }

// Input returns the increment site.
func (a *Accumulator) Input() *system.Site { return a.input }

// Params returns the parameter site.
func (a *Accumulator) Params() *system.Site { return a.params.site }

// State returns the accumulator state.
func (a *Accumulator) State() AccumulatorState { return a.state }

// Threshold returns the current threshold.
func (a *Accumulator) Threshold() float64 { return a.params.get("th") }

// SetThreshold schedules a threshold change. The threshold must be
// positive: an empty total would otherwise count as crossed.
func (a *Accumulator) SetThreshold(th float64, opts ...system.ScheduleOption) error {
	if err := checkThreshold(th); err != nil {
		return fmt.Errorf("accumulator %s: %w", a.Name(), err)
	}
	return a.params.set(a.Base, "th", th, opts)
}

func checkThreshold(th float64) error {
	if !(th > 0) {
		return fmt.Errorf("%w: threshold must be positive, got %g", ErrParam, th)
	}
	return nil
}

// SetInput wires the accumulator to integrate site.
func (a *Accumulator) SetInput(site *system.Site) error {
	if err := system.Wire(&a.input, site, true); err != nil {
		return fmt.Errorf("accumulator %s: %w", a.Name(), err)
	}
	return nil
}

// Crossed reports whether the accumulated maximum is at or above the
// threshold.
func (a *Accumulator) Crossed() bool {
	return a.main.Current().MaxValue() >= a.Threshold()
}

// Resolve implements system.Process.
func (a *Accumulator) Resolve(ev system.Event) error {
	switch {
	case ev.From(a.Source(OpClear)):
		a.state = StateIdle
	case ev.From(a.Source(OpAccumulate)):
		if !a.Crossed() {
			return nil
		}
		if a.state != StateCrossed {
			a.System().Logger().Debug("threshold crossed",
				"accumulator", a.Name(),
				"max", a.main.Current().MaxValue(),
				"threshold", a.Threshold())
		}
		a.state = StateCrossed
		return a.Schedule(OpAboveThreshold, system.PriorityPropagation, nil)
	case ev.Touches(a.input):
		return a.accumulate()
	}
	return nil
}

func (a *Accumulator) accumulate() error {
	inc, err := a.main.New(a.input.Current().Data())
	if err != nil {
		return fmt.Errorf("accumulator %s: %w", a.Name(), err)
	}
	u, err := a.main.Update(inc, system.MethodAdd)
	if err != nil {
		return fmt.Errorf("accumulator %s: %w", a.Name(), err)
	}
	if a.state == StateIdle {
		a.state = StateAccumulating
	}
	return a.Schedule(OpAccumulate, system.PriorityPropagation, nil, u)
}

// Clear schedules a reset of the running total. It is the only way back
// to the idle state.
func (a *Accumulator) Clear(opts ...system.ScheduleOption) error {
	u, err := a.main.UpdateData(nil, system.MethodPush)
	if err != nil {
		return fmt.Errorf("accumulator %s: %w", a.Name(), err)
	}
	return a.Schedule(OpClear, system.PriorityPropagation, opts, u)
}

// DecisionLoop closes the accumulate-choose-clear cycle: a threshold
// crossing triggers the choice, and a landed selection clears the
// accumulator.
type DecisionLoop struct {
	system.Base
	acc       *Accumulator
	choice    *Choice
	pending   bool
	decisions int
}

// NewDecisionLoop creates and registers a loop between acc and choice.
func NewDecisionLoop(sys *system.System, name string, acc *Accumulator, choice *Choice) (*DecisionLoop, error) {
	l := &DecisionLoop{Base: system.NewBase(sys, name), acc: acc, choice: choice}
	if err := sys.Register(l); err != nil {
		return nil, err
	}
	return l, nil
}

// Decisions returns the number of selections that have landed.
func (l *DecisionLoop) Decisions() int { return l.decisions }

// Pending reports whether a triggered selection has not landed yet.
func (l *DecisionLoop) Pending() bool { return l.pending }

// Resolve implements system.Process.
func (l *DecisionLoop) Resolve(ev system.Event) error {
	switch {
	case ev.From(l.acc.Source(OpAboveThreshold)):
		if l.pending {
			return nil
		}
		l.pending = true
		return l.choice.Trigger()
	case ev.From(l.choice.Source(OpSelect)):
		l.pending = false
		l.decisions++
		return l.acc.Clear()
	}
	return nil
}

// Reset forgets a pending selection, for use after the queue is cleared.
func (l *DecisionLoop) Reset() { l.pending = false }
