package process

import (
	"fmt"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/system"
)

// InputOptions configures an Input.
type InputOptions struct {
	// Default is the value of keys that were not sent.
	Default float64
	// Accumulate keeps earlier values, overwriting only the sent keys.
	// Otherwise every send replaces the whole value.
	Accumulate bool
	// Lags is the number of previous values kept.
	Lags int
}

// Input receives externally supplied data.
type Input struct {
	system.Base
	main       *system.Site
	accumulate bool
}

// NewInput creates and registers an input over keys of form.
func NewInput(sys *system.System, name string, form numdict.KeyForm, opts InputOptions) (*Input, error) {
	main, err := system.NewSite(sys.Index(form), nil, opts.Default, opts.Lags)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", name, err)
	}
	in := &Input{Base: system.NewBase(sys, name), main: main, accumulate: opts.Accumulate}
	if err := sys.Register(in); err != nil {
		return nil, err
	}
	return in, nil
}

// Main returns the site holding the received data.
func (in *Input) Main() *system.Site { return in.main }

// Send schedules data as the next input value.
func (in *Input) Send(data map[numdict.Key]float64, opts ...system.ScheduleOption) error {
	method := system.MethodPush
	if in.accumulate {
		method = system.MethodWrite
	}
	u, err := in.main.UpdateData(data, method)
	if err != nil {
		return fmt.Errorf("input %s: send: %w", in.Name(), err)
	}
	return in.Schedule(OpSend, system.PriorityPropagation, opts, u)
}

// SendChunk sends the dyads of chunk as (dimension, value) keys.
func (in *Input) SendChunk(chunk *knowledge.Node, opts ...system.ScheduleOption) error {
	if err := knowledge.CheckChunk(chunk); err != nil {
		return fmt.Errorf("input %s: %w", in.Name(), err)
	}
	data := make(map[numdict.Key]float64)
	for _, d := range chunk.Dyads() {
		data[d.Key()] = d.Weight
	}
	return in.Send(data, opts...)
}

// Resolve implements system.Process. Inputs only change when sent to.
func (in *Input) Resolve(system.Event) error { return nil }
