package numdict

import (
	"fmt"
	"math"
)

// SumBy sums n over the aggregate slots of by.
func (n NumDict) SumBy(by KeyForm) (NumDict, error) { return n.reduce("sum", by, add, 0) }

// MulBy multiplies n over the aggregate slots of by.
func (n NumDict) MulBy(by KeyForm) (NumDict, error) { return n.reduce("mul", by, mul, 1) }

// MaxBy takes the maximum of n over the aggregate slots of by.
func (n NumDict) MaxBy(by KeyForm) (NumDict, error) {
	return n.reduce("max", by, math.Max, math.Inf(-1))
}

// MinBy takes the minimum of n over the aggregate slots of by.
func (n NumDict) MinBy(by KeyForm) (NumDict, error) {
	return n.reduce("min", by, math.Min, math.Inf(1))
}

// reduce groups the keys of n by their projection through by and folds
// each group with op. When the default is NaN or the identity of op only
// explicit entries are visited; otherwise the whole index is.
func (n NumDict) reduce(name string, by KeyForm, op func(a, b float64) float64, identity float64) (NumDict, error) {
	if err := by.reduces(n.i.form); err != nil {
		return NumDict{}, fmt.Errorf("%s reduction: %w", name, err)
	}
	d := make(map[Key]float64)
	visit := func(k Key) {
		g := by.project(k)
		acc, ok := d[g]
		if !ok {
			acc = identity
		}
		d[g] = op(acc, n.Get(k))
	}
	c := identity
	if math.IsNaN(n.c) || n.c == identity {
		for k := range n.d {
			visit(k)
		}
		c = n.c
	} else {
		seen := make(map[Key]bool, len(n.d))
		for _, k := range n.i.Keys() {
			seen[k] = true
			visit(k)
		}
		for k := range n.d {
			if !seen[k] {
				visit(k)
			}
		}
	}
	return NumDict{i: NewIndex(n.i.space, by), d: d, c: c}, nil
}

// MaxValue returns the largest value of n, counting the default when some
// key of the index has no explicit entry.
func (n NumDict) MaxValue() float64 {
	m := math.Inf(-1)
	for _, v := range n.d {
		m = math.Max(m, v)
	}
	if len(n.d) == 0 || (!math.IsNaN(n.c) && n.i.Len() > len(n.d)) {
		m = math.Max(m, n.c)
	}
	return m
}

// ArgmaxBy returns, for each group of by, the key holding the largest
// value. Ties go to the smallest key. NaN values never win.
func (n NumDict) ArgmaxBy(by KeyForm) (map[Key]Key, error) {
	if err := by.reduces(n.i.form); err != nil {
		return nil, fmt.Errorf("argmax: %w", err)
	}
	var keys []Key
	if math.IsNaN(n.c) || math.IsInf(n.c, -1) {
		keys = n.Keys()
	} else {
		keys = n.i.Keys()
		for k := range n.d {
			if !n.i.Contains(k) {
				keys = append(keys, k)
			}
		}
		SortKeys(keys)
	}
	best := make(map[Key]float64)
	out := make(map[Key]Key)
	for _, k := range keys {
		v := n.Get(k)
		if math.IsNaN(v) {
			continue
		}
		g := by.project(k)
		if cur, ok := best[g]; !ok || v > cur {
			best[g] = v
			out[g] = k
		}
	}
	return out, nil
}

// Argmax returns the key holding the largest value of n.
func (n NumDict) Argmax() (Key, bool) {
	out, err := n.ArgmaxBy(n.i.form.Agg())
	if err != nil {
		return "", false
	}
	k, ok := out[""]
	return k, ok
}
