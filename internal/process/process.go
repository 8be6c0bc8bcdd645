// Package process implements the components that run on a system.System:
// inputs, pools, bottom-up and top-down associations, stochastic choice,
// evidence accumulation and chunk stores.
//
// Every component reads sites, computes its next value with the numdict
// algebra and schedules it as an update. Nothing is written in place
// outside of construction.
package process

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/system"
)

// Operation names used as event sources.
const (
	OpSend           = "send"
	OpUpdate         = "update"
	OpParam          = "param"
	OpTrigger        = "trigger"
	OpSelect         = "select"
	OpAccumulate     = "accumulate"
	OpAboveThreshold = "above_threshold"
	OpClear          = "clear"
	OpCompile        = "compile"
	OpWeights        = "weights"
)

// ErrParam is returned for a parameter value a component cannot run with.
var ErrParam = errors.New("invalid parameter")

// Transform reshapes a value before or after a computation.
type Transform func(numdict.NumDict) numdict.NumDict

func apply(t Transform, n numdict.NumDict) numdict.NumDict {
	if t == nil {
		return n
	}
	return t(n)
}

// dualForm returns the form of (dimension, value) keys. d may be nil.
func dualForm(d, v *knowledge.Node, dh ...int) numdict.KeyForm {
	fv := knowledge.FormOf(v, dh...)
	if d == nil {
		return fv
	}
	return knowledge.FormOf(d).Mul(fv)
}

func checkRoot(sys *system.System, nodes ...*knowledge.Node) error {
	var present []*knowledge.Node
	for _, n := range nodes {
		if n != nil {
			present = append(present, n)
		}
	}
	return sys.CheckRoot(present...)
}

// label turns a process name into a namespace label.
func label(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// params is a sort of parameter atoms plus the site holding their values.
type params struct {
	sort *knowledge.Node
	site *system.Site
}

func newParams(sys *system.System, family *knowledge.Node, proc string, values map[string]float64, names ...string) (params, error) {
	if family == nil {
		return params{}, fmt.Errorf("%s: parameter family is required", proc)
	}
	sort, err := family.Sort(label(proc), names...)
	if err != nil {
		return params{}, fmt.Errorf("%s parameters: %w", proc, err)
	}
	data := make(map[numdict.Key]float64, len(values))
	for name, v := range values {
		data[sort.Member(name).Key()] = v
	}
	site, err := system.NewSite(sys.Index(knowledge.FormOf(sort)), data, math.NaN(), 0)
	if err != nil {
		return params{}, fmt.Errorf("%s parameters: %w", proc, err)
	}
	return params{sort: sort, site: site}, nil
}

func (p params) key(name string) numdict.Key {
	return numdict.NewKey(p.sort.Path() + "." + name)
}

func (p params) get(name string) float64 { return p.site.Current().Get(p.key(name)) }

// set schedules a parameter write from b.
func (p params) set(b system.Base, name string, v float64, opts []system.ScheduleOption) error {
	u, err := p.site.UpdateData(map[numdict.Key]float64{p.key(name): v}, system.MethodWrite)
	if err != nil {
		return fmt.Errorf("%s: set %s: %w", b.Name(), name, err)
	}
	return b.Schedule(OpParam, system.PriorityParam, opts, u)
}
