package simulation

import (
	"testing"
)

// AssertAllDecided asserts that every trial reached a decision.
func AssertAllDecided(t *testing.T, result Result) {
	t.Helper()
	for _, tr := range result.Trials {
		if !tr.Decided {
			t.Errorf("AssertAllDecided: trial %d (%s) undecided after %d steps", tr.Index, tr.Label, tr.Steps)
		}
	}
}

// AssertChosen asserts that a trial selected want.
func AssertChosen(t *testing.T, result Result, trial int, want string) {
	t.Helper()
	if trial >= len(result.Trials) {
		t.Fatalf("AssertChosen: trial %d out of range (%d trials)", trial, len(result.Trials))
	}
	tr := result.Trials[trial]
	if !tr.Decided {
		t.Errorf("AssertChosen: trial %d undecided, want %s", trial, want)
		return
	}
	if tr.Choice != want {
		t.Errorf("AssertChosen: trial %d chose %s, want %s", trial, tr.Choice, want)
	}
}

// AssertChoiceRate asserts that value was chosen in a share of decided
// trials within [min, max].
func AssertChoiceRate(t *testing.T, result Result, value string, min, max float64) {
	t.Helper()
	decided := result.Decided()
	if decided == 0 {
		t.Errorf("AssertChoiceRate: no decided trials")
		return
	}
	rate := float64(result.Counts()[value]) / float64(decided)
	if rate < min || rate > max {
		t.Errorf("AssertChoiceRate: %s chosen in %.3f of %d trials, want [%.3f, %.3f]", value, rate, decided, min, max)
	}
}

// AssertDecisionTime asserts that each decided trial took between min and
// max evidence steps.
func AssertDecisionTime(t *testing.T, result Result, minSteps, maxSteps int) {
	t.Helper()
	for _, tr := range result.Trials {
		if !tr.Decided {
			continue
		}
		if tr.Steps < minSteps || tr.Steps > maxSteps {
			t.Errorf("AssertDecisionTime: trial %d decided after %d steps, want [%d, %d]", tr.Index, tr.Steps, minSteps, maxSteps)
		}
	}
}
