package process

import (
	"fmt"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/system"
)

// PoolFunc combines weighted inputs into a pool's next value. main is an
// empty value over the pool's index.
type PoolFunc func(main numdict.NumDict, inputs ...numdict.NumDict) (numdict.NumDict, error)

// CAM keeps the strongest positive and the strongest negative input per
// key and adds them.
func CAM(main numdict.NumDict, inputs ...numdict.NumDict) (numdict.NumDict, error) {
	hi, err := main.Max(inputs...)
	if err != nil {
		return numdict.NumDict{}, err
	}
	lo, err := main.Min(inputs...)
	if err != nil {
		return numdict.NumDict{}, err
	}
	return hi.Sum(lo)
}

// Heckerman combines inputs in (-1, 1) as independent certainty factors:
// each is mapped to log-odds, the log-odds are summed, and the sum is
// mapped back.
func Heckerman(main numdict.NumDict, inputs ...numdict.NumDict) (numdict.NumDict, error) {
	logOdds := func(n numdict.NumDict) numdict.NumDict { return n.Shift(1).Scale(0.5).Logit() }
	terms := make([]numdict.NumDict, len(inputs))
	for i, in := range inputs {
		terms[i] = logOdds(in)
	}
	sum, err := logOdds(main).Sum(terms...)
	if err != nil {
		return numdict.NumDict{}, err
	}
	return sum.Expit().Scale(2).Shift(-1), nil
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	// Func combines the inputs; CAM when nil.
	Func PoolFunc
	// Post is applied to the combined value.
	Post Transform
}

// Pool merges several contributing sites of a common shape. Each input
// has a gain parameter, initially 1.
type Pool struct {
	system.Base
	main   *system.Site
	params params
	inputs map[string]*system.Site
	pre    map[string]Transform
	order  []string
	fn     PoolFunc
	post   Transform
}

// NewPool creates and registers a pool over keys of form. Gain parameters
// are kept in a sort created under paramFamily.
func NewPool(sys *system.System, name string, paramFamily *knowledge.Node, form numdict.KeyForm, opts PoolOptions) (*Pool, error) {
	if err := checkRoot(sys, paramFamily); err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	main, err := system.NewSite(sys.Index(form), nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	p, err := newParams(sys, paramFamily, name, nil)
	if err != nil {
		return nil, err
	}
	fn := opts.Func
	if fn == nil {
		fn = CAM
	}
	pool := &Pool{
		Base:   system.NewBase(sys, name),
		main:   main,
		params: p,
		inputs: make(map[string]*system.Site),
		pre:    make(map[string]Transform),
		fn:     fn,
		post:   opts.Post,
	}
	if err := sys.Register(pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// Main returns the pooled value.
func (p *Pool) Main() *system.Site { return p.main }

// Params returns the gain site.
func (p *Pool) Params() *system.Site { return p.params.site }

// Register adds a contributing site under name with an optional
// pre-transform. Every key of the pool must be a key of the site.
func (p *Pool) Register(name string, site *system.Site, pre Transform) error {
	if _, ok := p.inputs[name]; ok {
		return fmt.Errorf("pool %s: input %q already registered", p.Name(), name)
	}
	mi, si := p.main.Index(), site.Index()
	if mi.Space() != si.Space() || !mi.Form().LessEq(si.Form()) {
		return fmt.Errorf("pool %s: input %q %s does not cover %s: %w",
			p.Name(), name, si, mi, system.ErrWiring)
	}
	if _, err := p.params.sort.Atom(name); err != nil {
		return fmt.Errorf("pool %s: %w", p.Name(), err)
	}
	gain, err := p.params.site.UpdateData(map[numdict.Key]float64{p.params.key(name): 1}, system.MethodWrite)
	if err != nil {
		return fmt.Errorf("pool %s: %w", p.Name(), err)
	}
	if err := gain.Apply(); err != nil {
		return fmt.Errorf("pool %s: %w", p.Name(), err)
	}
	p.inputs[name] = site
	p.pre[name] = pre
	p.order = append(p.order, name)
	return nil
}

// Input returns the site registered under name.
func (p *Pool) Input(name string) (*system.Site, bool) {
	s, ok := p.inputs[name]
	return s, ok
}

// Gain returns the current gain of the named input.
func (p *Pool) Gain(name string) float64 { return p.params.get(name) }

// SetGain schedules a gain change for the named input.
func (p *Pool) SetGain(name string, g float64, opts ...system.ScheduleOption) error {
	if _, ok := p.inputs[name]; !ok {
		return fmt.Errorf("pool %s: unknown input %q", p.Name(), name)
	}
	return p.params.set(p.Base, name, g, opts)
}

// Resolve implements system.Process.
func (p *Pool) Resolve(ev system.Event) error {
	if ev.Touches(p.params.site) {
		return p.Update()
	}
	for _, name := range p.order {
		if ev.Touches(p.inputs[name]) {
			return p.Update()
		}
	}
	return nil
}

// Update schedules the recomputed pool value.
func (p *Pool) Update(opts ...system.ScheduleOption) error {
	inputs := make([]numdict.NumDict, 0, len(p.order))
	for _, name := range p.order {
		in := apply(p.pre[name], p.inputs[name].Current())
		inputs = append(inputs, in.Scale(p.Gain(name)))
	}
	next, err := p.fn(numdict.Empty(p.main.Index(), p.main.Default()), inputs...)
	if err != nil {
		return fmt.Errorf("pool %s: %w", p.Name(), err)
	}
	next = apply(p.post, next)
	if p.System().Settled(p.main, next) {
		return nil
	}
	u, err := p.main.Update(next, system.MethodPush)
	if err != nil {
		return fmt.Errorf("pool %s: %w", p.Name(), err)
	}
	return p.Schedule(OpUpdate, system.PriorityPropagation, opts, u)
}
