package process

import (
	"fmt"
	"math"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/system"
)

// AssocOptions configures a BottomUp or TopDown association.
type AssocOptions struct {
	Pre  Transform
	Post Transform
}

// associationSites holds the state shared by both directions of a
// chunk-feature association.
type associationSites struct {
	main    *system.Site
	input   *system.Site
	weights *system.Site
	pre     Transform
	post    Transform
}

func newAssociation(sys *system.System, name string, mainForm, inputForm, weightForm numdict.KeyForm, opts AssocOptions) (associationSites, error) {
	main, err := system.NewSite(sys.Index(mainForm), nil, 0, 0)
	if err != nil {
		return associationSites{}, fmt.Errorf("%s: %w", name, err)
	}
	input, err := system.NewSite(sys.Index(inputForm), nil, 0, 0)
	if err != nil {
		return associationSites{}, fmt.Errorf("%s: %w", name, err)
	}
	weights, err := system.NewSite(sys.Index(weightForm), nil, math.NaN(), 0)
	if err != nil {
		return associationSites{}, fmt.Errorf("%s: %w", name, err)
	}
	return associationSites{main: main, input: input, weights: weights, pre: opts.Pre, post: opts.Post}, nil
}

// BottomUp activates chunks from (dimension, value) features. A chunk's
// activation sums, over its dimensions, the strongest weighted feature
// of that dimension.
type BottomUp struct {
	system.Base
	associationSites
	mulBy numdict.KeyForm
	maxBy numdict.KeyForm
	sumBy numdict.KeyForm
}

// NewBottomUp creates and registers a bottom-up association from the
// features d*v to the chunks of sort c.
func NewBottomUp(sys *system.System, name string, c, d, v *knowledge.Node, opts AssocOptions) (*BottomUp, error) {
	if err := checkRoot(sys, c, d, v); err != nil {
		return nil, fmt.Errorf("bottom-up %s: %w", name, err)
	}
	fc, fd, fv := knowledge.FormOf(c), knowledge.FormOf(d), knowledge.FormOf(v)
	sites, err := newAssociation(sys, name, fc, fd.Mul(fv), fc.Mul(fd).Mul(fv), opts)
	if err != nil {
		return nil, err
	}
	bu := &BottomUp{
		Base:             system.NewBase(sys, name),
		associationSites: sites,
		mulBy:            fc.Agg().Mul(fd).Mul(fv),
		maxBy:            fc.Mul(fd).Mul(fv.Coarsen(-1)),
		sumBy:            fc.Mul(fd.Agg()).Mul(fv.Coarsen(-1).Agg()),
	}
	if err := sys.Register(bu); err != nil {
		return nil, err
	}
	return bu, nil
}

// Main returns the chunk activations.
func (bu *BottomUp) Main() *system.Site { return bu.main }

// Input returns the feature site read by the association.
func (bu *BottomUp) Input() *system.Site { return bu.input }

// Weights returns the chunk-feature weights. Unset weights are NaN.
func (bu *BottomUp) Weights() *system.Site { return bu.weights }

// SetInput wires the association to read features from site.
func (bu *BottomUp) SetInput(site *system.Site) error {
	if err := system.Wire(&bu.input, site, true); err != nil {
		return fmt.Errorf("bottom-up %s: %w", bu.Name(), err)
	}
	return nil
}

// Resolve implements system.Process.
func (bu *BottomUp) Resolve(ev system.Event) error {
	if ev.Touches(bu.input) {
		return bu.Update()
	}
	return nil
}

// Update schedules the recomputed chunk activations.
func (bu *BottomUp) Update(opts ...system.ScheduleOption) error {
	next, err := bu.compute()
	if err != nil {
		return fmt.Errorf("bottom-up %s: %w", bu.Name(), err)
	}
	if bu.System().Settled(bu.main, next) {
		return nil
	}
	u, err := bu.main.Update(next, system.MethodPush)
	if err != nil {
		return fmt.Errorf("bottom-up %s: %w", bu.Name(), err)
	}
	return bu.Schedule(OpUpdate, system.PriorityPropagation, opts, u)
}

func (bu *BottomUp) compute() (numdict.NumDict, error) {
	in := apply(bu.pre, bu.input.Current())
	weighted, err := bu.weights.Current().MulBroadcast(in, bu.mulBy)
	if err != nil {
		return numdict.NumDict{}, err
	}
	strongest, err := weighted.MaxBy(bu.maxBy)
	if err != nil {
		return numdict.NumDict{}, err
	}
	total, err := strongest.SumBy(bu.sumBy)
	if err != nil {
		return numdict.NumDict{}, err
	}
	return apply(bu.post, total.WithDefault(0)), nil
}

// AggFunc folds chunk contributions per feature cell of by.
type AggFunc func(cf numdict.NumDict, by numdict.KeyForm) (numdict.NumDict, error)

// CAMAgg keeps the strongest excitatory and the strongest inhibitory
// contribution per cell and adds them.
func CAMAgg(cf numdict.NumDict, by numdict.KeyForm) (numdict.NumDict, error) {
	hi, err := cf.MaxBy(by)
	if err != nil {
		return numdict.NumDict{}, err
	}
	lo, err := cf.MinBy(by)
	if err != nil {
		return numdict.NumDict{}, err
	}
	return hi.BoundMin(0).WithDefault(0).Sum(lo.BoundMax(0).WithDefault(0))
}

// TopDownOptions configures a TopDown association.
type TopDownOptions struct {
	AssocOptions
	// Agg folds contributions per feature; CAMAgg when nil.
	Agg AggFunc
}

// TopDown projects chunk activations onto (dimension, value) features.
type TopDown struct {
	system.Base
	associationSites
	mulBy numdict.KeyForm
	aggBy numdict.KeyForm
	agg   AggFunc
}

// NewTopDown creates and registers a top-down association from the chunks
// of sort c to the features d*v.
func NewTopDown(sys *system.System, name string, c, d, v *knowledge.Node, opts TopDownOptions) (*TopDown, error) {
	if err := checkRoot(sys, c, d, v); err != nil {
		return nil, fmt.Errorf("top-down %s: %w", name, err)
	}
	fc, fd, fv := knowledge.FormOf(c), knowledge.FormOf(d), knowledge.FormOf(v)
	sites, err := newAssociation(sys, name, fd.Mul(fv), fc, fc.Mul(fd).Mul(fv), opts.AssocOptions)
	if err != nil {
		return nil, err
	}
	agg := opts.Agg
	if agg == nil {
		agg = CAMAgg
	}
	td := &TopDown{
		Base:             system.NewBase(sys, name),
		associationSites: sites,
		mulBy:            fc.Mul(fd.Agg()).Mul(fv.Agg()),
		aggBy:            fc.Agg().Mul(fd).Mul(fv),
		agg:              agg,
	}
	if err := sys.Register(td); err != nil {
		return nil, err
	}
	return td, nil
}

// Main returns the feature activations.
func (td *TopDown) Main() *system.Site { return td.main }

// Input returns the chunk site read by the association.
func (td *TopDown) Input() *system.Site { return td.input }

// Weights returns the chunk-feature weights. Unset weights are NaN.
func (td *TopDown) Weights() *system.Site { return td.weights }

// SetInput wires the association to read chunk activations from site.
func (td *TopDown) SetInput(site *system.Site) error {
	if err := system.Wire(&td.input, site, true); err != nil {
		return fmt.Errorf("top-down %s: %w", td.Name(), err)
	}
	return nil
}

// Resolve implements system.Process.
func (td *TopDown) Resolve(ev system.Event) error {
	if ev.Touches(td.input) {
		return td.Update()
	}
	return nil
}

// Update schedules the recomputed feature activations.
func (td *TopDown) Update(opts ...system.ScheduleOption) error {
	next, err := td.compute()
	if err != nil {
		return fmt.Errorf("top-down %s: %w", td.Name(), err)
	}
	if td.System().Settled(td.main, next) {
		return nil
	}
	u, err := td.main.Update(next, system.MethodPush)
	if err != nil {
		return fmt.Errorf("top-down %s: %w", td.Name(), err)
	}
	return td.Schedule(OpUpdate, system.PriorityPropagation, opts, u)
}

func (td *TopDown) compute() (numdict.NumDict, error) {
	in := apply(td.pre, td.input.Current())
	cf, err := td.weights.Current().MulBroadcast(in, td.mulBy)
	if err != nil {
		return numdict.NumDict{}, err
	}
	out, err := td.agg(apply(td.post, cf), td.aggBy)
	if err != nil {
		return numdict.NumDict{}, err
	}
	return out.WithDefault(0), nil
}
