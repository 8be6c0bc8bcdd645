package process

import (
	"fmt"
	"math"
	"time"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/system"
)

// DefaultRT is the delay between a rule selection and its firing.
const DefaultRT = 50 * time.Millisecond

// RuleStoreOptions configures a RuleStore.
type RuleStoreOptions struct {
	// Action configures the store holding rule actions, typically to
	// project them onto an output dimension.
	Action ChunkStoreOptions
}

// RuleStore owns a sort of rules together with two chunk stores: one for
// rule conditions and one for rule actions. A rule's activation is its
// strongest weighted condition as recognised bottom-up.
type RuleStore struct {
	system.Base
	rules *knowledge.Node
	lhs   *ChunkStore
	rhs   *ChunkStore
	main  *system.Site
	riw   *system.Site
	lhw   *system.Site
	rhw   *system.Site
	mulBy numdict.KeyForm
	maxBy numdict.KeyForm
}

// NewRuleStore creates a rule sort under family r, condition and action
// chunk sorts under family c, and registers the store with both chunk
// stores. Conditions are recognised from the features d*v.
func NewRuleStore(sys *system.System, name string, r, c, d, v *knowledge.Node, opts RuleStoreOptions) (*RuleStore, error) {
	if err := checkRoot(sys, r, c, d, v); err != nil {
		return nil, fmt.Errorf("rule store %s: %w", name, err)
	}
	rules, err := r.Sort(label(name))
	if err != nil {
		return nil, fmt.Errorf("rule store %s: %w", name, err)
	}
	s := &RuleStore{Base: system.NewBase(sys, name), rules: rules}
	if err := sys.Register(s); err != nil {
		return nil, err
	}
	if s.lhs, err = NewChunkStore(sys, name+".lhs", c, d, v, ChunkStoreOptions{}); err != nil {
		return nil, err
	}
	if s.rhs, err = NewChunkStore(sys, name+".rhs", c, d, v, opts.Action); err != nil {
		return nil, err
	}

	fr := knowledge.FormOf(rules)
	fl, fa := knowledge.FormOf(s.lhs.chunks), knowledge.FormOf(s.rhs.chunks)
	sites := []struct {
		dst  **system.Site
		form numdict.KeyForm
		def  float64
	}{
		{&s.main, fr, 0},
		{&s.riw, fr.Mul(fr), math.NaN()},
		{&s.lhw, fr.Mul(fl), math.NaN()},
		{&s.rhw, fr.Mul(fa), math.NaN()},
	}
	for _, st := range sites {
		site, err := system.NewSite(sys.Index(st.form), nil, st.def, 0)
		if err != nil {
			return nil, fmt.Errorf("rule store %s: %w", name, err)
		}
		*st.dst = site
	}
	s.mulBy = fr.Agg().Mul(fl)
	s.maxBy = fr.Mul(fl.Agg())
	return s, nil
}

// Rules returns the sort holding compiled rules.
func (s *RuleStore) Rules() *knowledge.Node { return s.rules }

// Conditions returns the store of condition chunks.
func (s *RuleStore) Conditions() *ChunkStore { return s.lhs }

// Actions returns the store of action chunks.
func (s *RuleStore) Actions() *ChunkStore { return s.rhs }

// Main returns the rule activations.
func (s *RuleStore) Main() *system.Site { return s.main }

// RIW returns the rule-to-rule weights.
func (s *RuleStore) RIW() *system.Site { return s.riw }

// LHW returns the rule-to-condition weights.
func (s *RuleStore) LHW() *system.Site { return s.lhw }

// RHW returns the rule-to-action weights.
func (s *RuleStore) RHW() *system.Site { return s.rhw }

// Compile schedules the addition of rules, with their condition and
// action chunks, to the store. A chunk may be shared by several rules on
// the same side but cannot be both a condition and an action.
func (s *RuleStore) Compile(rules []*knowledge.Node, opts ...system.ScheduleOption) error {
	var lhs, rhs []*knowledge.Node
	side := make(map[*knowledge.Node]*knowledge.Node)
	add := func(ch *knowledge.Node, sort *knowledge.Node, dst *[]*knowledge.Node) error {
		if prev, ok := side[ch]; ok {
			if prev != sort {
				return fmt.Errorf("rule store %s: chunk %s is both a condition and an action: %w",
					s.Name(), ch.Name(), knowledge.ErrRule)
			}
			return nil
		}
		if p := ch.Parent(); p != nil && p != sort {
			return fmt.Errorf("rule store %s: chunk %s belongs to %s: %w",
				s.Name(), ch.Name(), p, knowledge.ErrAttached)
		}
		side[ch] = sort
		*dst = append(*dst, ch)
		return nil
	}
	for _, r := range rules {
		if err := knowledge.CheckRule(r); err != nil {
			return fmt.Errorf("rule store %s: %w", s.Name(), err)
		}
		for _, c := range r.Conditions() {
			if err := add(c.Chunk, s.lhs.chunks, &lhs); err != nil {
				return err
			}
		}
		if err := add(r.Action().Chunk, s.rhs.chunks, &rhs); err != nil {
			return err
		}
	}
	return s.Schedule(OpCompile, system.PriorityLearning, opts,
		&system.SortUpdate{Sort: s.lhs.chunks, Terms: lhs},
		&system.SortUpdate{Sort: s.rhs.chunks, Terms: rhs},
		&system.SortUpdate{Sort: s.rules, Terms: rules},
	)
}

// Resolve implements system.Process.
func (s *RuleStore) Resolve(ev system.Event) error {
	if ev.From(s.Source(OpCompile)) {
		terms := make(map[*knowledge.Node][]*knowledge.Node)
		for _, u := range ev.Updates {
			if su, ok := u.(*system.SortUpdate); ok {
				terms[su.Sort] = append(terms[su.Sort], su.Terms...)
			}
		}
		s.System().Logger().Debug("rules compiled", "store", s.Name(), "rules", len(terms[s.rules]))
		if err := s.lhs.compileWeights(terms[s.lhs.chunks]); err != nil {
			return err
		}
		if err := s.rhs.compileWeights(terms[s.rhs.chunks]); err != nil {
			return err
		}
		return s.compileWeights(terms[s.rules])
	}
	if ev.Touches(s.lhs.bu.Main()) {
		return s.Update()
	}
	return nil
}

func (s *RuleStore) compileWeights(rules []*knowledge.Node) error {
	riw := make(map[numdict.Key]float64)
	lhw := make(map[numdict.Key]float64)
	rhw := make(map[numdict.Key]float64)
	for _, r := range rules {
		k := r.Key()
		riw[k.Mul(k)] = 1
		for _, c := range r.Conditions() {
			lhw[k.Mul(c.Chunk.Key())] = c.Weight
		}
		a := r.Action()
		rhw[k.Mul(a.Chunk.Key())] = a.Weight
	}
	var updates []system.Update
	for _, w := range []struct {
		site *system.Site
		data map[numdict.Key]float64
	}{
		{s.riw, riw},
		{s.lhw, lhw},
		{s.rhw, rhw},
	} {
		u, err := w.site.UpdateData(w.data, system.MethodWrite)
		if err != nil {
			return fmt.Errorf("rule store %s: %w", s.Name(), err)
		}
		updates = append(updates, u)
	}
	return s.Schedule(OpWeights, system.PriorityLearning, nil, updates...)
}

// Update schedules rule activations: the strongest weighted condition
// chunk of each rule.
func (s *RuleStore) Update(opts ...system.ScheduleOption) error {
	weighted, err := s.lhw.Current().MulBroadcast(s.lhs.bu.Main().Current(), s.mulBy)
	if err != nil {
		return fmt.Errorf("rule store %s: %w", s.Name(), err)
	}
	best, err := weighted.MaxBy(s.maxBy)
	if err != nil {
		return fmt.Errorf("rule store %s: %w", s.Name(), err)
	}
	next := best.WithDefault(s.main.Default())
	if s.System().Settled(s.main, next) {
		return nil
	}
	u, err := s.main.Update(next, system.MethodPush)
	if err != nil {
		return fmt.Errorf("rule store %s: %w", s.Name(), err)
	}
	return s.Schedule(OpUpdate, system.PriorityPropagation, opts, u)
}

// ActionRulesOptions configures ActionRules.
type ActionRulesOptions struct {
	// SD is the selection noise of the rule choice.
	SD float64
	// RT is the delay from selection to firing; DefaultRT when zero.
	RT time.Duration
	// Store configures the underlying rule store.
	Store RuleStoreOptions
}

// ActionRules selects one rule at a time and fires it: after the response
// time the selected rule's action chunk drives the action store's
// top-down association.
type ActionRules struct {
	system.Base
	store  *RuleStore
	choice *Choice
	main   *system.Site
	action *system.Site
	rt     time.Duration
	fired  int

	// riw * selection
	mulBy numdict.KeyForm
	sumBy numdict.KeyForm
	// rhw * selection
	actBy numdict.KeyForm
	outBy numdict.KeyForm
}

// NewActionRules creates a rule store and a choice over its rules. Rule
// choice parameters live under p; rules, conditions and actions are
// created as in NewRuleStore.
func NewActionRules(sys *system.System, name string, p, r, c, d, v *knowledge.Node, opts ActionRulesOptions) (*ActionRules, error) {
	if opts.RT < 0 {
		return nil, fmt.Errorf("action rules %s: %w: negative response time %v", name, ErrParam, opts.RT)
	}
	rt := opts.RT
	if rt == 0 {
		rt = DefaultRT
	}
	a := &ActionRules{Base: system.NewBase(sys, name), rt: rt}
	if err := sys.Register(a); err != nil {
		return nil, err
	}
	var err error
	if a.store, err = NewRuleStore(sys, name+".rules", r, c, d, v, opts.Store); err != nil {
		return nil, err
	}
	if a.choice, err = NewChoice(sys, name+".choice", p, nil, a.store.rules, ChoiceOptions{SD: opts.SD}); err != nil {
		return nil, err
	}
	if err := a.choice.SetInput(a.store.main); err != nil {
		return nil, err
	}

	fr := knowledge.FormOf(a.store.rules)
	fa := knowledge.FormOf(a.store.rhs.chunks)
	if a.main, err = system.NewSite(sys.Index(fr), nil, 0, 0); err != nil {
		return nil, fmt.Errorf("action rules %s: %w", name, err)
	}
	if a.action, err = system.NewSite(sys.Index(fa), nil, 0, 0); err != nil {
		return nil, fmt.Errorf("action rules %s: %w", name, err)
	}
	if err := a.store.rhs.td.SetInput(a.action); err != nil {
		return nil, err
	}
	a.mulBy = fr.Agg().Mul(fr)
	a.sumBy = fr.Mul(fr.Agg())
	a.actBy = fr.Mul(fa.Agg())
	a.outBy = fr.Agg().Mul(fa)
	return a, nil
}

// Store returns the rule store.
func (a *ActionRules) Store() *RuleStore { return a.store }

// Choice returns the rule choice.
func (a *ActionRules) Choice() *Choice { return a.choice }

// Main returns the activation of the last fired rule.
func (a *ActionRules) Main() *system.Site { return a.main }

// Action returns the action chunk activations fed to the action store's
// top-down association.
func (a *ActionRules) Action() *system.Site { return a.action }

// Output returns the features expressed by fired actions.
func (a *ActionRules) Output() *system.Site { return a.store.rhs.td.Main() }

// RT returns the response time.
func (a *ActionRules) RT() time.Duration { return a.rt }

// Fired returns the number of rule firings so far.
func (a *ActionRules) Fired() int { return a.fired }

// Selected returns the key of the currently selected rule.
func (a *ActionRules) Selected() (numdict.Key, bool) {
	k, ok := a.choice.Poll()[a.store.rules.Key()]
	return k, ok
}

// Trigger schedules a rule selection at deferred priority.
func (a *ActionRules) Trigger(opts ...system.ScheduleOption) error {
	return a.Schedule(OpTrigger, system.PriorityDeferred, opts)
}

// Resolve implements system.Process.
func (a *ActionRules) Resolve(ev system.Event) error {
	switch {
	case ev.From(a.Source(OpTrigger)):
		return a.choice.Select()
	case ev.From(a.choice.Source(OpSelect)):
		return a.Update(system.After(a.rt))
	case ev.From(a.Source(OpUpdate)):
		a.fired++
		if k, ok := a.Selected(); ok {
			a.System().Logger().Debug("rule fired", "rules", a.Name(), "rule", k.String())
		}
	}
	return nil
}

// Update schedules the firing of the selected rule: its activation on
// main and its action chunk on the action site.
func (a *ActionRules) Update(opts ...system.ScheduleOption) error {
	sel := a.choice.main.Current()
	fired, err := a.store.riw.Current().MulBroadcast(sel, a.mulBy)
	if err != nil {
		return fmt.Errorf("action rules %s: %w", a.Name(), err)
	}
	if fired, err = fired.SumBy(a.sumBy); err != nil {
		return fmt.Errorf("action rules %s: %w", a.Name(), err)
	}
	act, err := a.store.rhw.Current().MulBroadcast(sel, a.actBy)
	if err != nil {
		return fmt.Errorf("action rules %s: %w", a.Name(), err)
	}
	if act, err = act.SumBy(a.outBy); err != nil {
		return fmt.Errorf("action rules %s: %w", a.Name(), err)
	}
	mainUpdate, err := a.main.Update(fired.WithDefault(a.main.Default()), system.MethodPush)
	if err != nil {
		return fmt.Errorf("action rules %s: %w", a.Name(), err)
	}
	actUpdate, err := a.action.Update(act.WithDefault(a.action.Default()), system.MethodPush)
	if err != nil {
		return fmt.Errorf("action rules %s: %w", a.Name(), err)
	}
	return a.Schedule(OpUpdate, system.PriorityPropagation, opts, mainUpdate, actUpdate)
}
