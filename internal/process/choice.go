package process

import (
	"fmt"
	"math"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/system"
)

// ChoiceOptions configures a Choice.
type ChoiceOptions struct {
	// SD is the standard deviation of the selection noise.
	SD float64
}

// Choice makes a noisy one-of-n selection per (dimension, value-group).
// Selection is explicit: call Select, or Trigger to select at deferred
// priority once the current instant has otherwise settled.
type Choice struct {
	system.Base
	params params
	by     numdict.KeyForm
	input  *system.Site
	bias   *system.Site
	main   *system.Site
	sample *system.Site
}

// NewChoice creates and registers a choice over d*v, choosing one value
// per dimension and parent of v. d may be nil to choose over v alone.
func NewChoice(sys *system.System, name string, paramFamily, d, v *knowledge.Node, opts ChoiceOptions) (*Choice, error) {
	if err := checkRoot(sys, paramFamily, d, v); err != nil {
		return nil, fmt.Errorf("choice %s: %w", name, err)
	}
	if err := checkSD(opts.SD); err != nil {
		return nil, fmt.Errorf("choice %s: %w", name, err)
	}
	idx := sys.Index(dualForm(d, v))
	p, err := newParams(sys, paramFamily, name, map[string]float64{"sd": opts.SD}, "sd")
	if err != nil {
		return nil, err
	}
	c := &Choice{Base: system.NewBase(sys, name), params: p, by: dualForm(d, v, -1)}
	sites := []struct {
		dst **system.Site
		def float64
	}{
		{&c.input, 0},
		{&c.bias, 0},
		{&c.main, 0},
		{&c.sample, math.NaN()},
	}
	for _, s := range sites {
		site, err := system.NewSite(idx, nil, s.def, 0)
		if err != nil {
			return nil, fmt.Errorf("choice %s: %w", name, err)
		}
		*s.dst = site
	}
	if err := sys.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Main returns the one-hot selection.
func (c *Choice) Main() *system.Site { return c.main }

// Input returns the site scored by the choice.
func (c *Choice) Input() *system.Site { return c.input }

// Bias returns the additive bias site.
func (c *Choice) Bias() *system.Site { return c.bias }

// Sample returns the noisy scores of the last selection.
func (c *Choice) Sample() *system.Site { return c.sample }

// Params returns the parameter site.
func (c *Choice) Params() *system.Site { return c.params.site }

// SD returns the current noise level.
func (c *Choice) SD() float64 { return c.params.get("sd") }

// SetSD schedules a change of the noise level.
func (c *Choice) SetSD(sd float64, opts ...system.ScheduleOption) error {
	if err := checkSD(sd); err != nil {
		return fmt.Errorf("choice %s: %w", c.Name(), err)
	}
	return c.params.set(c.Base, "sd", sd, opts)
}

func checkSD(sd float64) error {
	if !(sd >= 0) {
		return fmt.Errorf("%w: sd must be non-negative, got %g", ErrParam, sd)
	}
	return nil
}

// SetInput wires the choice to score site.
func (c *Choice) SetInput(site *system.Site) error {
	if err := system.Wire(&c.input, site, true); err != nil {
		return fmt.Errorf("choice %s: %w", c.Name(), err)
	}
	return nil
}

// GroupBy returns the form grouping competing keys.
func (c *Choice) GroupBy() numdict.KeyForm { return c.by }

// Poll returns the current selection as group -> chosen key. It is empty
// before the first selection lands.
func (c *Choice) Poll() map[numdict.Key]numdict.Key {
	cur := c.main.Current()
	if cur.Len() == 0 {
		return map[numdict.Key]numdict.Key{}
	}
	out, err := cur.ArgmaxBy(c.by)
	if err != nil {
		return map[numdict.Key]numdict.Key{}
	}
	return out
}

// Trigger schedules a selection at deferred priority.
func (c *Choice) Trigger(opts ...system.ScheduleOption) error {
	return c.Schedule(OpTrigger, system.PriorityDeferred, opts)
}

// Select scores bias+input with Gaussian noise and schedules the one-hot
// winner of every group together with the sample it was drawn from.
func (c *Choice) Select(opts ...system.ScheduleOption) error {
	scores, err := c.bias.Current().Sum(c.input.Current())
	if err != nil {
		return fmt.Errorf("choice %s: %w", c.Name(), err)
	}
	sd := numdict.Empty(scores.Index(), c.SD())
	sample, err := scores.NormalVariate(sd, c.System().Rand())
	if err != nil {
		return fmt.Errorf("choice %s: %w", c.Name(), err)
	}
	winners, err := sample.ArgmaxBy(c.by)
	if err != nil {
		return fmt.Errorf("choice %s: %w", c.Name(), err)
	}
	hot := make(map[numdict.Key]float64, len(winners))
	for _, k := range winners {
		hot[k] = 1
	}
	mainUpdate, err := c.main.UpdateData(hot, system.MethodPush)
	if err != nil {
		return fmt.Errorf("choice %s: %w", c.Name(), err)
	}
	sampleUpdate, err := c.sample.Update(sample, system.MethodPush)
	if err != nil {
		return fmt.Errorf("choice %s: %w", c.Name(), err)
	}
	c.System().Logger().Debug("choice selected", "choice", c.Name(), "groups", len(winners))
	return c.Schedule(OpSelect, system.PriorityChoice, opts, mainUpdate, sampleUpdate)
}

// Resolve implements system.Process.
func (c *Choice) Resolve(ev system.Event) error {
	if ev.From(c.Source(OpTrigger)) {
		return c.Select()
	}
	return nil
}
