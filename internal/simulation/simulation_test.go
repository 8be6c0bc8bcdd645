package simulation_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/cogloop/internal/config"
	"github.com/nvandessel/cogloop/internal/logging"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/process"
	"github.com/nvandessel/cogloop/internal/simulation"
	"github.com/nvandessel/cogloop/internal/trace"
)

func loadTwoChoice(t *testing.T) simulation.Scenario {
	t.Helper()
	sc, err := simulation.LoadScenario(filepath.Join("testdata", "two_choice.yaml"))
	if err != nil {
		t.Fatalf("LoadScenario() error = %v", err)
	}
	return sc
}

func build(t *testing.T, sc simulation.Scenario) *simulation.Model {
	t.Helper()
	m, err := simulation.Build(config.Default(), sc, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return m
}

func TestLoadScenario(t *testing.T) {
	sc := loadTwoChoice(t)
	if sc.Name != "two-choice" || len(sc.Chunks) != 2 || len(sc.Trials) != 3 {
		t.Fatalf("unexpected scenario %+v", sc)
	}
	if sc.Threshold == nil || *sc.Threshold != 2 {
		t.Errorf("threshold = %v, want 2", sc.Threshold)
	}
	if sc.Trials[0].Interval != time.Millisecond {
		t.Errorf("interval = %v, want 1ms", sc.Trials[0].Interval)
	}
}

func TestValidateRejects(t *testing.T) {
	base := `
name: bad
dimensions:
  - name: color
    values: [red]
  - name: direction
    values: [left]
response: direction
`
	tests := []struct {
		name string
		yaml string
	}{
		{"no name", "dimensions: []\n"},
		{"unknown response", strings.Replace(base, "response: direction", "response: shape", 1) +
			"chunks:\n  - name: a\n    response: left\n"},
		{"no chunks", base},
		{"unknown feature", base + "chunks:\n  - name: a\n    features: {color.blue: 1}\n    response: left\n"},
		{"bad response value", base + "chunks:\n  - name: a\n    response: right\n"},
		{"trial without evidence", base + "chunks:\n  - name: a\n    response: left\ntrials:\n  - steps: 3\n"},
		{"unknown trial feature", base + "chunks:\n  - name: a\n    response: left\ntrials:\n  - evidence: {shape.box: 1}\n"},
		{"negative rules rt", base + "chunks:\n  - name: a\n    response: left\nrules:\n  rt: -1ms\n"},
		{"negative rules sd", base + "chunks:\n  - name: a\n    response: left\nrules:\n  sd: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := simulation.ParseScenario([]byte(tt.yaml))
			if !errors.Is(err, simulation.ErrScenario) {
				t.Errorf("ParseScenario() error = %v, want ErrScenario", err)
			}
		})
	}
}

func TestParseScenarioSanitizesLabels(t *testing.T) {
	sc, err := simulation.ParseScenario([]byte(`
name: labels
dimensions:
  - name: direction
    values: [left]
response: direction
chunks:
  - name: a
    response: left
trials:
  - label: "red\e[31m\a trial  "
    evidence: {direction.left: 1}
`))
	if err != nil {
		t.Fatal(err)
	}
	if got := sc.Trials[0].Label; got != "red[31m trial" {
		t.Errorf("label = %q", got)
	}
}

func TestTwoChoiceRun(t *testing.T) {
	m := build(t, loadTwoChoice(t))
	res, err := m.Run(context.Background(), simulation.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Trials) != 3 {
		t.Fatalf("got %d trials, want 3", len(res.Trials))
	}

	simulation.AssertChosen(t, res, 0, "left")
	simulation.AssertChosen(t, res, 1, "right")
	// 0.5 per step against a threshold of 2
	simulation.AssertDecisionTime(t, res, 4, 4)

	red := res.Trials[0]
	if red.Time != 3*time.Millisecond {
		t.Errorf("red decided after %v, want 3ms", red.Time)
	}
	if math.Abs(red.Evidence-2) > 1e-9 {
		t.Errorf("red evidence = %v, want 2", red.Evidence)
	}
	if red.Key != "data.io.output*feat.direction.left" {
		t.Errorf("red key = %q", red.Key)
	}

	faint := res.Trials[2]
	if faint.Decided || faint.Steps != 5 {
		t.Errorf("faint trial = %+v, want undecided after 5 steps", faint)
	}
	if res.Decided() != 2 {
		t.Errorf("Decided() = %d, want 2", res.Decided())
	}
	if got := m.Accumulator().Main().Current().MaxValue(); got != 0 {
		t.Errorf("accumulator not cleared after run: %v", got)
	}
	if m.System().Pending() != 0 {
		t.Errorf("Pending() = %d after run", m.System().Pending())
	}
	if !strings.Contains(res.Summary(), "2/3 decided") {
		t.Errorf("Summary() = %q", res.Summary())
	}
}

func TestRepeatedTrialsFollowEvidence(t *testing.T) {
	sc := loadTwoChoice(t)
	sd := 0.5
	sc.SD = &sd
	sc.Trials = nil
	for range 20 {
		sc.Trials = append(sc.Trials, simulation.TrialSpec{
			Evidence: map[string]float64{"color.red": 1},
			Steps:    10,
		})
	}
	m := build(t, sc)
	res, err := m.Run(context.Background(), simulation.RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	simulation.AssertAllDecided(t, res)
	// accumulated 2 vs 0 with noise sd 0.5: left nearly always wins
	simulation.AssertChoiceRate(t, res, "left", 0.9, 1)
}

func TestRunTrialRejectsBadEvidence(t *testing.T) {
	m := build(t, loadTwoChoice(t))
	ctx := context.Background()

	_, err := m.RunTrial(ctx, simulation.TrialSpec{Evidence: map[string]float64{"color.red": math.NaN()}})
	if !errors.Is(err, simulation.ErrUndefinedWeight) {
		t.Errorf("NaN evidence error = %v, want ErrUndefinedWeight", err)
	}
	_, err = m.RunTrial(ctx, simulation.TrialSpec{Evidence: map[string]float64{"color.blue": 1}})
	if !errors.Is(err, numdict.ErrUnknownKey) {
		t.Errorf("unknown feature error = %v, want ErrUnknownKey", err)
	}
	if m.System().Pending() != 0 {
		t.Error("rejected trials must not schedule evidence")
	}
}

func TestRunRecordsTraceAndDecisions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := trace.Open(filepath.Join(dir, "trace.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	rec, err := store.BeginRun(ctx, "two-choice", 1)
	if err != nil {
		t.Fatal(err)
	}
	dl := logging.NewDecisionLogger(dir, "debug")
	if dl == nil {
		t.Fatal("NewDecisionLogger() returned nil at debug level")
	}

	m := build(t, loadTwoChoice(t))
	res, err := m.Run(ctx, simulation.RunOptions{Recorder: rec, Decisions: dl})
	dl.Close()
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID != rec.RunID() {
		t.Errorf("RunID = %q, want %q", res.RunID, rec.RunID())
	}

	decisions, err := store.Decisions(ctx, rec.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 2 {
		t.Fatalf("recorded %d decisions, want 2", len(decisions))
	}
	if decisions[1].Trial != 1 || !strings.HasSuffix(decisions[1].Choice, ".right") {
		t.Errorf("second decision = %+v", decisions[1])
	}
	events, err := store.Events(ctx, rec.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Error("no events recorded")
	}

	f, err := os.Open(filepath.Join(dir, "decisions.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	// two decisions, then the faint trial running out of steps
	if len(lines) != 3 {
		t.Fatalf("decisions.jsonl has %d lines, want 3", len(lines))
	}
	var last map[string]any
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatal(err)
	}
	if last["event"] != "undecided" || last["label"] != "faint" || last["trial"] != float64(2) {
		t.Errorf("last line = %v, want undecided faint trial 2", last)
	}
}

func TestBuildLeavesModelIdle(t *testing.T) {
	m := build(t, loadTwoChoice(t))
	if got := m.Accumulator().State(); got != process.StateIdle {
		t.Errorf("accumulator state after build = %v, want idle", got)
	}
	if got := m.Loop().Decisions(); got != 0 {
		t.Errorf("decisions after build = %d, want 0", got)
	}
	if got := m.Selection(); got != "" {
		t.Errorf("selection after build = %q, want none", got)
	}
}

func TestBuildRejectsNonPositiveThreshold(t *testing.T) {
	for _, th := range []float64{0, -1, math.NaN()} {
		sc := loadTwoChoice(t)
		sc.Threshold = nil
		cfg := config.Default()
		cfg.Accumulator.Threshold = th
		if _, err := simulation.Build(cfg, sc, nil); !errors.Is(err, process.ErrParam) {
			t.Errorf("Build() with threshold %v error = %v, want ErrParam", th, err)
		}
	}
}

func loadRules(t *testing.T) simulation.Scenario {
	t.Helper()
	sc, err := simulation.LoadScenario(filepath.Join("testdata", "two_choice_rules.yaml"))
	if err != nil {
		t.Fatalf("LoadScenario() error = %v", err)
	}
	return sc
}

func TestRuleRouteRun(t *testing.T) {
	sc := loadRules(t)
	if sc.Rules == nil || sc.Rules.RT != 2*time.Millisecond {
		t.Fatalf("rules = %+v, want rt 2ms", sc.Rules)
	}
	m := build(t, sc)
	if m.Store() != nil || m.Rules() == nil {
		t.Fatal("rule scenario must build action rules instead of a chunk store")
	}
	if got := m.Accumulator().State(); got != process.StateIdle {
		t.Errorf("accumulator state after build = %v, want idle", got)
	}
	if n := len(m.Rules().Store().Rules().Members()); n != 2 {
		t.Errorf("compiled %d rules, want 2", n)
	}
	// red_left and green_right share no action chunk
	if n := len(m.Rules().Store().Actions().Chunks().Members()); n != 2 {
		t.Errorf("compiled %d action chunks, want 2", n)
	}

	res, err := m.Run(context.Background(), simulation.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	simulation.AssertChosen(t, res, 0, "left")
	simulation.AssertChosen(t, res, 1, "right")

	// one unit per firing against a threshold of 2: the first firing lands
	// one RT after the first step and the second a step later
	red := res.Trials[0]
	if red.Time != 3*time.Millisecond {
		t.Errorf("red decided after %v, want 3ms", red.Time)
	}
	if math.Abs(red.Evidence-2) > 1e-9 {
		t.Errorf("red evidence = %v, want 2", red.Evidence)
	}
	if m.Rules().Fired() < 4 {
		t.Errorf("Fired() = %d, want at least two firings per trial", m.Rules().Fired())
	}
}

func TestRuleRouteSharesActions(t *testing.T) {
	sc := loadRules(t)
	sc.Chunks = append(sc.Chunks, simulation.ChunkSpec{
		Name:     "green_left",
		Features: map[string]float64{"color.green": 0.5},
		Response: "left",
	})
	m := build(t, sc)
	if n := len(m.Rules().Store().Rules().Members()); n != 3 {
		t.Errorf("compiled %d rules, want 3", n)
	}
	if n := len(m.Rules().Store().Actions().Chunks().Members()); n != 2 {
		t.Errorf("compiled %d action chunks, want 2 shared by response", n)
	}
}
