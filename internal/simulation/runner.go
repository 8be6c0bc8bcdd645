package simulation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nvandessel/cogloop/internal/logging"
	"github.com/nvandessel/cogloop/internal/process"
	"github.com/nvandessel/cogloop/internal/system"
	"github.com/nvandessel/cogloop/internal/trace"
)

// TrialResult captures the outcome of a single trial.
type TrialResult struct {
	Index   int    `json:"index"`
	Label   string `json:"label,omitempty"`
	Decided bool   `json:"decided"`

	// Choice is the selected response value and Key its full key.
	Choice string `json:"choice,omitempty"`
	Key    string `json:"key,omitempty"`

	// Time is the simulated time from the first send to the decision.
	Time time.Duration `json:"time"`
	// Steps is the number of evidence sends delivered by then.
	Steps int `json:"steps"`
	// Evidence is the accumulated maximum at the decision.
	Evidence float64 `json:"evidence"`
}

// Result captures all trials of a run.
type Result struct {
	Scenario string        `json:"scenario"`
	RunID    string        `json:"run_id,omitempty"`
	Trials   []TrialResult `json:"trials"`
}

// Counts returns how often each response value was chosen.
func (r Result) Counts() map[string]int {
	out := make(map[string]int)
	for _, t := range r.Trials {
		if t.Decided {
			out[t.Choice]++
		}
	}
	return out
}

// Decided returns the number of trials that reached a decision.
func (r Result) Decided() int {
	n := 0
	for _, t := range r.Trials {
		if t.Decided {
			n++
		}
	}
	return n
}

// RunOptions wires optional recorders into a run.
type RunOptions struct {
	// Recorder receives every event and decision.
	Recorder *trace.Recorder
	// Decisions receives one JSONL record per decision and one
	// "undecided" record per trial that ran out of steps.
	Decisions *logging.DecisionLogger
}

// Run executes every trial of the scenario in order.
func (m *Model) Run(ctx context.Context, opts RunOptions) (Result, error) {
	res := Result{Scenario: m.scenario.Name}
	if opts.Recorder != nil {
		m.sys.Observe(opts.Recorder)
		res.RunID = opts.Recorder.RunID()
	}
	for _, spec := range m.scenario.Trials {
		tr, err := m.RunTrial(ctx, spec)
		if err != nil {
			return res, err
		}
		res.Trials = append(res.Trials, tr)
		if !tr.Decided {
			opts.Decisions.Log(map[string]any{
				"event":    "undecided",
				"run_id":   res.RunID,
				"trial":    tr.Index,
				"label":    tr.Label,
				"steps":    tr.Steps,
				"sim_time": tr.Time.String(),
			})
			continue
		}
		group := m.output.Key().Mul(m.response.Key()).String()
		opts.Decisions.LogDecision(logging.Decision{
			RunID:    res.RunID,
			Trial:    tr.Index,
			SimTime:  tr.Time.String(),
			Group:    group,
			Choice:   tr.Key,
			Evidence: tr.Evidence,
		})
		if opts.Recorder != nil {
			err := opts.Recorder.RecordDecision(ctx, trace.Decision{
				Trial:    tr.Index,
				SimTime:  tr.Time,
				Group:    group,
				Choice:   tr.Key,
				Evidence: tr.Evidence,
			})
			if err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// Send schedules evidence for delivery steps times, interval apart,
// starting now. On the rule route every delivery also triggers a rule
// selection. Weights are "dimension.value" features; NaN weights and
// unknown features are rejected before anything is scheduled.
func (m *Model) Send(evidence map[string]float64, steps int, interval time.Duration) error {
	for f, w := range evidence {
		if math.IsNaN(w) {
			return fmt.Errorf("feature %q: %w", f, ErrUndefinedWeight)
		}
	}
	data, err := m.EvidenceKeys(evidence)
	if err != nil {
		return err
	}
	for i := range steps {
		at := system.After(time.Duration(i) * interval)
		if err := m.evidence.Send(data, at); err != nil {
			return err
		}
		if m.rules != nil {
			if err := m.rules.Trigger(at); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunTrial sends the trial evidence until a decision lands or the steps
// run out, then resets the model for the next trial.
func (m *Model) RunTrial(ctx context.Context, spec TrialSpec) (TrialResult, error) {
	start, interval, steps := m.sys.Now(), spec.interval(), spec.steps()
	if err := m.Send(spec.Evidence, steps, interval); err != nil {
		return TrialResult{}, fmt.Errorf("trial %d: %w", m.trials, err)
	}

	tr := TrialResult{Index: m.trials, Label: spec.Label}
	m.trials++

	ev, found, err := m.sys.RunUntil(ctx, func(ev system.Event) bool {
		return ev.From(m.choice.Source(process.OpSelect))
	})
	if err != nil {
		return tr, fmt.Errorf("trial %d: %w", tr.Index, err)
	}
	if found {
		tr.Decided = true
		tr.Time = ev.Time - start
		tr.Steps = min(int(tr.Time/interval)+1, steps)
		tr.Evidence = m.acc.Main().Current().MaxValue()
		for _, k := range m.choice.Poll() {
			tr.Key, tr.Choice = k.String(), valueLabel(k)
		}
		m.sys.Logger().Info("trial decided",
			"trial", tr.Index,
			"choice", tr.Choice,
			"time", tr.Time,
			"steps", tr.Steps)
	} else {
		tr.Steps = steps
		m.sys.Logger().Info("trial undecided", "trial", tr.Index, "steps", steps)
		if err := m.acc.Clear(); err != nil {
			return tr, err
		}
	}

	if err := m.settleClear(ctx); err != nil {
		return tr, fmt.Errorf("trial %d: %w", tr.Index, err)
	}
	return tr, nil
}

// settleClear runs until the accumulator clear lands, then drops any
// evidence still queued.
func (m *Model) settleClear(ctx context.Context) error {
	_, _, err := m.sys.RunUntil(ctx, func(ev system.Event) bool {
		return ev.From(m.acc.Source(process.OpClear))
	})
	if err != nil {
		return err
	}
	m.sys.Clear()
	m.loop.Reset()
	return nil
}

// Summary renders a one-line-per-trial report.
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s: %d/%d decided\n", r.Scenario, r.Decided(), len(r.Trials))
	for _, t := range r.Trials {
		name := t.Label
		if name == "" {
			name = fmt.Sprintf("trial %d", t.Index)
		}
		if !t.Decided {
			fmt.Fprintf(&b, "  %s: no decision after %d steps\n", name, t.Steps)
			continue
		}
		fmt.Fprintf(&b, "  %s: %s at %v (steps=%d evidence=%.4f)\n", name, t.Choice, t.Time, t.Steps, t.Evidence)
	}
	return b.String()
}
