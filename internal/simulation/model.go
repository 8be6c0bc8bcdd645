package simulation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/cogloop/internal/config"
	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/process"
	"github.com/nvandessel/cogloop/internal/system"
)

// Model is a scenario compiled into a running network.
type Model struct {
	scenario Scenario
	sys      *system.System

	input    *knowledge.Node // data.io.input
	output   *knowledge.Node // data.io.output
	feat     *knowledge.Node
	response *knowledge.Node // feat.<response>

	evidence *process.Input
	store    *process.ChunkStore  // nil on the rule route
	rules    *process.ActionRules // nil unless the scenario sets rules
	acc      *process.Accumulator
	choice   *process.Choice
	loop     *process.DecisionLoop

	trials int
}

// Build constructs the namespace and processes for sc and compiles its
// chunks. Scenario threshold and sd take precedence over cfg.
func Build(cfg *config.CogloopConfig, sc Scenario, logger *slog.Logger) (*Model, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	root := knowledge.NewRoot()
	data, err := root.Family("data")
	if err != nil {
		return nil, err
	}
	io, err := data.Sort("io", "input", "output")
	if err != nil {
		return nil, err
	}
	feat, err := root.Family("feat")
	if err != nil {
		return nil, err
	}
	for _, d := range sc.Dimensions {
		if _, err := feat.Sort(d.Name, d.Values...); err != nil {
			return nil, fmt.Errorf("dimension %s: %w", d.Name, err)
		}
	}
	chunkFam, err := root.Family("chunks")
	if err != nil {
		return nil, err
	}
	params, err := root.Family("params")
	if err != nil {
		return nil, err
	}

	m := &Model{
		scenario: sc,
		sys:      system.New(root, cfg.SystemOptions(), logger),
		input:    io.Member("input"),
		output:   io.Member("output"),
		feat:     feat,
		response: feat.Member(sc.Response),
	}

	threshold, sd := cfg.Accumulator.Threshold, cfg.Choice.SD
	if sc.Threshold != nil {
		threshold = *sc.Threshold
	}
	if sc.SD != nil {
		sd = *sc.SD
	}

	inputForm := knowledge.FormOf(m.input).Mul(knowledge.FormOf(feat))
	if m.evidence, err = process.NewInput(m.sys, "evidence", inputForm, process.InputOptions{}); err != nil {
		return nil, err
	}
	m.acc, err = process.NewAccumulator(m.sys, "acc", params, m.output, m.response,
		process.AccumulatorOptions{Threshold: threshold})
	if err != nil {
		return nil, err
	}
	if sc.Rules != nil {
		err = m.buildRules(root, chunkFam, params, sd)
	} else {
		err = m.buildStore(chunkFam)
	}
	if err != nil {
		return nil, err
	}
	m.choice, err = process.NewChoice(m.sys, "choice", params, m.output, m.response,
		process.ChoiceOptions{SD: sd})
	if err != nil {
		return nil, err
	}
	if err := m.choice.SetInput(m.acc.Main()); err != nil {
		return nil, err
	}
	if m.loop, err = process.NewDecisionLoop(m.sys, "loop", m.acc, m.choice); err != nil {
		return nil, err
	}

	if err := m.sys.RunAll(context.Background()); err != nil {
		return nil, fmt.Errorf("compiling chunks: %w", err)
	}
	m.sys.Logger().Debug("scenario built",
		"scenario", sc.Name,
		"chunks", len(sc.Chunks),
		"rules", sc.Rules != nil,
		"threshold", threshold,
		"sd", sd)
	return m, nil
}

// buildStore recognises chunks from the evidence and accumulates their
// top-down response features.
func (m *Model) buildStore(chunkFam *knowledge.Node) error {
	var err error
	m.store, err = process.NewChunkStore(m.sys, "store", chunkFam, m.input, m.feat,
		process.ChunkStoreOptions{TopDim: m.output, TopVal: m.response})
	if err != nil {
		return err
	}
	if err := m.store.BottomUp().SetInput(m.evidence.Main()); err != nil {
		return err
	}
	if err := m.acc.SetInput(m.store.TopDown().Main()); err != nil {
		return err
	}
	chunks, err := m.chunks()
	if err != nil {
		return err
	}
	return m.store.Compile(chunks)
}

// buildRules matches cue chunks against the evidence, fires one rule per
// evidence step and accumulates the response features of fired actions.
func (m *Model) buildRules(root, chunkFam, params *knowledge.Node, sd float64) error {
	ruleFam, err := root.Family("rules")
	if err != nil {
		return err
	}
	if m.scenario.Rules.SD != nil {
		sd = *m.scenario.Rules.SD
	}
	m.rules, err = process.NewActionRules(m.sys, "rules", params, ruleFam, chunkFam, m.input, m.feat,
		process.ActionRulesOptions{
			SD:    sd,
			RT:    m.scenario.Rules.RT,
			Store: process.RuleStoreOptions{Action: process.ChunkStoreOptions{TopDim: m.output, TopVal: m.response}},
		})
	if err != nil {
		return err
	}
	if err := m.rules.Store().Conditions().BottomUp().SetInput(m.evidence.Main()); err != nil {
		return err
	}
	if err := m.acc.SetInput(m.rules.Output()); err != nil {
		return err
	}
	rules, err := m.ruleSet()
	if err != nil {
		return err
	}
	return m.rules.Store().Compile(rules)
}

func (m *Model) chunks() ([]*knowledge.Node, error) {
	out := make([]*knowledge.Node, 0, len(m.scenario.Chunks))
	for _, spec := range m.scenario.Chunks {
		var dyads []knowledge.Dyad
		for f, w := range spec.Features {
			val, ok := m.feat.Resolve(f)
			if !ok {
				return nil, fmt.Errorf("chunk %s: unknown feature %q", spec.Name, f)
			}
			dyads = append(dyads, knowledge.Dyad{Dim: m.input, Val: val, Weight: w})
		}
		resp := m.response.Member(spec.Response)
		if resp == nil {
			return nil, fmt.Errorf("chunk %s: unknown response %q", spec.Name, spec.Response)
		}
		dyads = append(dyads, knowledge.Dyad{Dim: m.output, Val: resp, Weight: 1})
		out = append(out, knowledge.NewChunk(spec.Name, dyads...))
	}
	return out, nil
}

// ruleSet turns every chunk spec into a rule from a cue chunk holding its
// features to an action chunk holding its response. Rules with the same
// response share the action chunk.
func (m *Model) ruleSet() ([]*knowledge.Node, error) {
	actions := make(map[string]*knowledge.Node)
	out := make([]*knowledge.Node, 0, len(m.scenario.Chunks))
	for _, spec := range m.scenario.Chunks {
		var dyads []knowledge.Dyad
		for f, w := range spec.Features {
			val, ok := m.feat.Resolve(f)
			if !ok {
				return nil, fmt.Errorf("rule %s: unknown feature %q", spec.Name, f)
			}
			dyads = append(dyads, knowledge.Dyad{Dim: m.input, Val: val, Weight: w})
		}
		act, ok := actions[spec.Response]
		if !ok {
			resp := m.response.Member(spec.Response)
			if resp == nil {
				return nil, fmt.Errorf("rule %s: unknown response %q", spec.Name, spec.Response)
			}
			act = knowledge.NewChunk(spec.Response, knowledge.Dyad{Dim: m.output, Val: resp, Weight: 1})
			actions[spec.Response] = act
		}
		out = append(out, knowledge.NewRule(spec.Name,
			knowledge.Weighted{Chunk: act, Weight: 1},
			knowledge.Weighted{Chunk: knowledge.NewChunk(spec.Name, dyads...), Weight: 1}))
	}
	return out, nil
}

// System returns the underlying scheduler.
func (m *Model) System() *system.System { return m.sys }

// Scenario returns the scenario the model was built from.
func (m *Model) Scenario() Scenario { return m.scenario }

// Evidence returns the input receiving trial evidence.
func (m *Model) Evidence() *process.Input { return m.evidence }

// Store returns the chunk store, or nil on the rule route.
func (m *Model) Store() *process.ChunkStore { return m.store }

// Rules returns the action rules, or nil unless the scenario routes
// through rules.
func (m *Model) Rules() *process.ActionRules { return m.rules }

// Accumulator returns the evidence accumulator.
func (m *Model) Accumulator() *process.Accumulator { return m.acc }

// Choice returns the response choice.
func (m *Model) Choice() *process.Choice { return m.choice }

// Loop returns the decision loop.
func (m *Model) Loop() *process.DecisionLoop { return m.loop }

// EvidenceKeys converts "dimension.value" weights to input keys.
func (m *Model) EvidenceKeys(evidence map[string]float64) (map[numdict.Key]float64, error) {
	data := make(map[numdict.Key]float64, len(evidence))
	for f, w := range evidence {
		val, ok := m.feat.Resolve(f)
		if !ok {
			return nil, fmt.Errorf("unknown feature %q: %w", f, numdict.ErrUnknownKey)
		}
		data[m.input.Key().Mul(val.Key())] = w
	}
	return data, nil
}

// Selection returns the current chosen response value, or "" before the
// first decision.
func (m *Model) Selection() string {
	for _, k := range m.choice.Poll() {
		return valueLabel(k)
	}
	return ""
}

// Accumulated returns the accumulated evidence per response value.
func (m *Model) Accumulated() map[string]float64 {
	out := make(map[string]float64)
	for k, v := range m.acc.Main().Current().Data() {
		out[valueLabel(k)] = v
	}
	return out
}

// valueLabel returns the last label of the last factor of k.
func valueLabel(k numdict.Key) string {
	fs := k.Factors()
	if len(fs) == 0 {
		return ""
	}
	last := fs[len(fs)-1]
	for i := len(last) - 1; i >= 0; i-- {
		if last[i] == '.' {
			return last[i+1:]
		}
	}
	return last
}
