package simulation

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/cogloop/internal/sanitize"
)

// Defaults applied to trials that leave a field unset.
const (
	DefaultSteps    = 100
	DefaultInterval = time.Millisecond
)

var (
	// ErrScenario is returned for malformed scenarios.
	ErrScenario = errors.New("invalid scenario")

	// ErrUndefinedWeight is returned when evidence carries a NaN weight.
	ErrUndefinedWeight = errors.New("undefined weight")
)

// Scenario defines a complete decision experiment.
type Scenario struct {
	Name       string          `json:"name" yaml:"name"`
	Dimensions []DimensionSpec `json:"dimensions" yaml:"dimensions"`

	// Response names the dimension whose value is decided.
	Response string      `json:"response" yaml:"response"`
	Chunks   []ChunkSpec `json:"chunks" yaml:"chunks"`

	// Threshold and SD override the configured accumulator threshold and
	// choice noise when set.
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	SD        *float64 `json:"sd,omitempty" yaml:"sd,omitempty"`

	// Rules, when set, routes evidence through action rules: every chunk
	// becomes a rule from its cue features to its response.
	Rules *RulesSpec `json:"rules,omitempty" yaml:"rules,omitempty"`

	Trials []TrialSpec `json:"trials" yaml:"trials"`
}

// DimensionSpec is a feature dimension and its values.
type DimensionSpec struct {
	Name   string   `json:"name" yaml:"name"`
	Values []string `json:"values" yaml:"values"`
}

// ChunkSpec links cue features ("dimension.value" -> weight) to a value of
// the response dimension.
type ChunkSpec struct {
	Name     string             `json:"name" yaml:"name"`
	Features map[string]float64 `json:"features" yaml:"features"`
	Response string             `json:"response" yaml:"response"`
}

// RulesSpec tunes the rule route. RT is the delay from rule selection to
// firing and SD the rule selection noise; they default to
// process.DefaultRT and the scenario's choice noise.
type RulesSpec struct {
	RT time.Duration `json:"rt,omitempty" yaml:"rt,omitempty"`
	SD *float64      `json:"sd,omitempty" yaml:"sd,omitempty"`
}

// TrialSpec is one decision: evidence sent Steps times, Interval apart.
type TrialSpec struct {
	Label    string             `json:"label,omitempty" yaml:"label,omitempty"`
	Evidence map[string]float64 `json:"evidence" yaml:"evidence"`
	Steps    int                `json:"steps,omitempty" yaml:"steps,omitempty"`
	Interval time.Duration      `json:"interval,omitempty" yaml:"interval,omitempty"`
}

func (t TrialSpec) steps() int {
	if t.Steps <= 0 {
		return DefaultSteps
	}
	return t.Steps
}

func (t TrialSpec) interval() time.Duration {
	if t.Interval <= 0 {
		return DefaultInterval
	}
	return t.Interval
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parsing scenario: %w", err)
	}
	for i := range sc.Trials {
		sc.Trials[i].Label = sanitize.Text(sc.Trials[i].Label)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// Validate checks that every chunk and trial refers to declared features.
func (sc Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("%w: name is required", ErrScenario)
	}
	values := make(map[string]map[string]bool, len(sc.Dimensions))
	for _, d := range sc.Dimensions {
		if _, dup := values[d.Name]; dup {
			return fmt.Errorf("%w: duplicate dimension %q", ErrScenario, d.Name)
		}
		if len(d.Values) == 0 {
			return fmt.Errorf("%w: dimension %q has no values", ErrScenario, d.Name)
		}
		values[d.Name] = make(map[string]bool, len(d.Values))
		for _, v := range d.Values {
			values[d.Name][v] = true
		}
	}
	feature := func(f string) bool {
		dim, val, ok := strings.Cut(f, ".")
		return ok && values[dim][val]
	}

	if _, ok := values[sc.Response]; !ok {
		return fmt.Errorf("%w: response dimension %q is not declared", ErrScenario, sc.Response)
	}
	if len(sc.Chunks) == 0 {
		return fmt.Errorf("%w: at least one chunk is required", ErrScenario)
	}
	for _, c := range sc.Chunks {
		if !values[sc.Response][c.Response] {
			return fmt.Errorf("%w: chunk %q responds %q, not a value of %q",
				ErrScenario, c.Name, c.Response, sc.Response)
		}
		for f, w := range c.Features {
			if !feature(f) {
				return fmt.Errorf("%w: chunk %q uses unknown feature %q", ErrScenario, c.Name, f)
			}
			if math.IsNaN(w) {
				return fmt.Errorf("chunk %q feature %q: %w", c.Name, f, ErrUndefinedWeight)
			}
		}
	}
	for i, t := range sc.Trials {
		if len(t.Evidence) == 0 {
			return fmt.Errorf("%w: trial %d has no evidence", ErrScenario, i)
		}
		for f := range t.Evidence {
			if !feature(f) {
				return fmt.Errorf("%w: trial %d uses unknown feature %q", ErrScenario, i, f)
			}
		}
	}
	if sc.Threshold != nil && *sc.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrScenario)
	}
	if sc.SD != nil && *sc.SD < 0 {
		return fmt.Errorf("%w: sd must be non-negative", ErrScenario)
	}
	if r := sc.Rules; r != nil {
		if r.RT < 0 {
			return fmt.Errorf("%w: rules rt must be non-negative", ErrScenario)
		}
		if r.SD != nil && !(*r.SD >= 0) {
			return fmt.Errorf("%w: rules sd must be non-negative", ErrScenario)
		}
	}
	return nil
}
