package system

import (
	"fmt"

	"github.com/nvandessel/cogloop/internal/numdict"
)

// Process is a component that reacts to events. Resolve is called for
// every event the system processes, after its updates are applied.
type Process interface {
	Name() string
	Resolve(ev Event) error
}

// Base carries the identity shared by all processes. Embed it and pass
// the embedding value to System.Register.
type Base struct {
	name string
	sys  *System
}

// NewBase returns the base of a process named name.
func NewBase(sys *System, name string) Base { return Base{name: name, sys: sys} }

// Name returns the process name.
func (b Base) Name() string { return b.name }

// System returns the owning system.
func (b Base) System() *System { return b.sys }

// Source returns the event source for operation op of this process.
func (b Base) Source(op string) Source { return Source{Proc: b.name, Op: op} }

// Schedule schedules updates from operation op with default priority def.
func (b Base) Schedule(op string, def Priority, opts []ScheduleOption, updates ...Update) error {
	dt, p := Timing(def, opts...)
	return b.sys.Schedule(b.Source(op), dt, p, updates...)
}

// Wire points *dst at src. A lax connection accepts any src whose form is
// subsumed by the current site's form; otherwise the indices must match.
// Defaults must agree in both cases.
func Wire(dst **Site, src *Site, lax bool) error {
	old := *dst
	if old == nil {
		*dst = src
		return nil
	}
	oi, ni := old.Index(), src.Index()
	if oi.Space() != ni.Space() {
		return fmt.Errorf("wire %s: different namespaces: %w", ni, ErrWiring)
	}
	if lax {
		if !ni.Form().LessEq(oi.Form()) {
			return fmt.Errorf("wire %s into %s: %w", ni, oi, ErrWiring)
		}
	} else {
		if !ni.Equal(oi) {
			return fmt.Errorf("wire %s into %s: %w", ni, oi, ErrWiring)
		}
		if src.Lags() != old.Lags() {
			return fmt.Errorf("wire %s: lags %d, want %d: %w", ni, src.Lags(), old.Lags(), ErrWiring)
		}
	}
	if !numdict.SameDefault(src.Default(), old.Default()) {
		return fmt.Errorf("wire %s: default %g, want %g: %w", ni, src.Default(), old.Default(), ErrWiring)
	}
	*dst = src
	return nil
}
