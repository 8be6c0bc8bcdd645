package process

import (
	"fmt"
	"math"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/system"
)

// ChunkStoreOptions configures a ChunkStore.
type ChunkStoreOptions struct {
	// TopDim and TopVal set the feature space of the top-down side. They
	// default to the bottom-up dimensions and values.
	TopDim *knowledge.Node
	TopVal *knowledge.Node
}

// ChunkStore owns a sort of chunks with the associations that recognise
// them from features (bottom-up) and express them as features
// (top-down). Chunks are added with Compile.
type ChunkStore struct {
	system.Base
	chunks *knowledge.Node
	main   *system.Site
	ciw    *system.Site
	td     *TopDown
	bu     *BottomUp
	mulBy  numdict.KeyForm
	maxBy  numdict.KeyForm
	normBy numdict.KeyForm
}

// NewChunkStore creates a chunk sort under family c and registers the
// store with its associations.
func NewChunkStore(sys *system.System, name string, c, d, v *knowledge.Node, opts ChunkStoreOptions) (*ChunkStore, error) {
	if err := checkRoot(sys, c, d, v, opts.TopDim, opts.TopVal); err != nil {
		return nil, fmt.Errorf("chunk store %s: %w", name, err)
	}
	chunks, err := c.Sort(label(name))
	if err != nil {
		return nil, fmt.Errorf("chunk store %s: %w", name, err)
	}
	fc := knowledge.FormOf(chunks)
	main, err := system.NewSite(sys.Index(fc), nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("chunk store %s: %w", name, err)
	}
	ciw, err := system.NewSite(sys.Index(fc.Mul(fc)), nil, math.NaN(), 0)
	if err != nil {
		return nil, fmt.Errorf("chunk store %s: %w", name, err)
	}

	s := &ChunkStore{
		Base:   system.NewBase(sys, name),
		chunks: chunks,
		main:   main,
		ciw:    ciw,
		mulBy:  fc.Agg().Mul(fc),
		maxBy:  fc.Mul(fc.Agg()),
		normBy: fc.Mul(knowledge.FormOf(d).Agg()).Mul(knowledge.FormOf(v).Agg()),
	}
	if err := sys.Register(s); err != nil {
		return nil, err
	}

	topDim, topVal := d, v
	if opts.TopDim != nil {
		topDim = opts.TopDim
	}
	if opts.TopVal != nil {
		topVal = opts.TopVal
	}
	if s.td, err = NewTopDown(sys, name+".td", chunks, topDim, topVal, TopDownOptions{}); err != nil {
		return nil, err
	}
	if s.bu, err = NewBottomUp(sys, name+".bu", chunks, d, v, AssocOptions{}); err != nil {
		return nil, err
	}
	if err := s.td.SetInput(s.main); err != nil {
		return nil, err
	}
	return s, nil
}

// Chunks returns the sort holding compiled chunks.
func (s *ChunkStore) Chunks() *knowledge.Node { return s.chunks }

// Main returns the chunk activations.
func (s *ChunkStore) Main() *system.Site { return s.main }

// CIW returns the chunk-to-chunk weights.
func (s *ChunkStore) CIW() *system.Site { return s.ciw }

// TopDown returns the top-down association.
func (s *ChunkStore) TopDown() *TopDown { return s.td }

// BottomUp returns the bottom-up association.
func (s *ChunkStore) BottomUp() *BottomUp { return s.bu }

// Compile schedules the addition of chunks to the store. Their weights
// are written once the chunks are registered.
func (s *ChunkStore) Compile(chunks []*knowledge.Node, opts ...system.ScheduleOption) error {
	for _, ch := range chunks {
		if err := knowledge.CheckChunk(ch); err != nil {
			return fmt.Errorf("chunk store %s: %w", s.Name(), err)
		}
	}
	u := &system.SortUpdate{Sort: s.chunks, Terms: chunks}
	return s.Schedule(OpCompile, system.PriorityLearning, opts, u)
}

// Resolve implements system.Process.
func (s *ChunkStore) Resolve(ev system.Event) error {
	if ev.From(s.Source(OpCompile)) {
		var terms []*knowledge.Node
		for _, u := range ev.Updates {
			if su, ok := u.(*system.SortUpdate); ok && su.Sort == s.chunks {
				terms = append(terms, su.Terms...)
			}
		}
		return s.compileWeights(terms)
	}
	if ev.Touches(s.bu.Main()) {
		return s.Update()
	}
	return nil
}

// compileWeights schedules identity chunk weights, top-down weights taken
// from the chunk dyads, and bottom-up weights normalised per chunk by
// 1 + the sum over dimensions of the largest absolute weight.
func (s *ChunkStore) compileWeights(chunks []*knowledge.Node) error {
	ciw := make(map[numdict.Key]float64)
	tdw := make(map[numdict.Key]float64)
	buw := make(map[numdict.Key]float64)
	tdIdx, buIdx := s.td.Weights().Index(), s.bu.Weights().Index()
	for _, ch := range chunks {
		k := ch.Key()
		ciw[k.Mul(k)] = 1
		for _, d := range ch.Dyads() {
			wk := k.Mul(d.Key())
			if tdIdx.Contains(wk) {
				tdw[wk] = d.Weight
			}
			if buIdx.Contains(wk) {
				buw[wk] = d.Weight
			}
		}
	}

	raw, err := s.bu.Weights().New(buw)
	if err != nil {
		return fmt.Errorf("chunk store %s: %w", s.Name(), err)
	}
	peak, err := raw.Abs().MaxBy(s.bu.maxBy)
	if err != nil {
		return fmt.Errorf("chunk store %s: %w", s.Name(), err)
	}
	norm, err := peak.SumBy(s.bu.sumBy)
	if err != nil {
		return fmt.Errorf("chunk store %s: %w", s.Name(), err)
	}
	scaled, err := raw.DivBroadcast(norm.Shift(1), s.normBy)
	if err != nil {
		return fmt.Errorf("chunk store %s: %w", s.Name(), err)
	}

	var updates []system.Update
	for _, w := range []struct {
		site *system.Site
		data map[numdict.Key]float64
	}{
		{s.ciw, ciw},
		{s.td.Weights(), tdw},
	} {
		u, err := w.site.UpdateData(w.data, system.MethodWrite)
		if err != nil {
			return fmt.Errorf("chunk store %s: %w", s.Name(), err)
		}
		updates = append(updates, u)
	}
	bu, err := s.bu.Weights().Update(scaled, system.MethodWrite)
	if err != nil {
		return fmt.Errorf("chunk store %s: %w", s.Name(), err)
	}
	updates = append(updates, bu)
	return s.Schedule(OpWeights, system.PriorityLearning, nil, updates...)
}

// Update schedules chunk activations read from the bottom-up association
// through the chunk-to-chunk weights.
func (s *ChunkStore) Update(opts ...system.ScheduleOption) error {
	spread, err := s.ciw.Current().MulBroadcast(s.bu.Main().Current(), s.mulBy)
	if err != nil {
		return fmt.Errorf("chunk store %s: %w", s.Name(), err)
	}
	best, err := spread.MaxBy(s.maxBy)
	if err != nil {
		return fmt.Errorf("chunk store %s: %w", s.Name(), err)
	}
	next := best.WithDefault(s.main.Default())
	if s.System().Settled(s.main, next) {
		return nil
	}
	u, err := s.main.Update(next, system.MethodPush)
	if err != nil {
		return fmt.Errorf("chunk store %s: %w", s.Name(), err)
	}
	return s.Schedule(OpUpdate, system.PriorityPropagation, opts, u)
}
