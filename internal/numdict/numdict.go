package numdict

import (
	"fmt"
	"math"
	"strings"
)

// NumDict is an immutable sparse mapping from the keys of an Index to
// float64 values. Keys without an explicit entry read as the default c.
type NumDict struct {
	i Index
	d map[Key]float64
	c float64
}

// New returns a NumDict over i. Every key in d must belong to i.
func New(i Index, d map[Key]float64, c float64) (NumDict, error) {
	data := make(map[Key]float64, len(d))
	for k, v := range d {
		if !i.Contains(k) {
			return NumDict{}, fmt.Errorf("%w: %q in %s", ErrUnknownKey, k, i)
		}
		data[k] = v
	}
	return NumDict{i: i, d: data, c: c}, nil
}

// Empty returns a NumDict over i with no explicit entries.
func Empty(i Index, c float64) NumDict {
	return NumDict{i: i, d: map[Key]float64{}, c: c}
}

// Index returns the index of n.
func (n NumDict) Index() Index { return n.i }

// Default returns the value of keys without an explicit entry.
func (n NumDict) Default() float64 { return n.c }

// Len returns the number of explicit entries.
func (n NumDict) Len() int { return len(n.d) }

// Get returns the value stored at k, or the default.
func (n NumDict) Get(k Key) float64 {
	if v, ok := n.d[k]; ok {
		return v
	}
	return n.c
}

// Lookup returns the explicit value at k, if any.
func (n NumDict) Lookup(k Key) (float64, bool) {
	v, ok := n.d[k]
	return v, ok
}

// Keys returns the explicit keys in sorted order.
func (n NumDict) Keys() []Key {
	keys := make([]Key, 0, len(n.d))
	for k := range n.d {
		keys = append(keys, k)
	}
	return SortKeys(keys)
}

// Data returns a copy of the explicit entries.
func (n NumDict) Data() map[Key]float64 {
	out := make(map[Key]float64, len(n.d))
	for k, v := range n.d {
		out[k] = v
	}
	return out
}

// HasNaN reports whether any explicit entry is NaN.
func (n NumDict) HasNaN() bool {
	for _, v := range n.d {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Equal reports whether n and o share an index and default and agree on
// every key within eps. NaN compares equal to NaN.
func (n NumDict) Equal(o NumDict, eps float64) bool {
	if !n.i.Equal(o.i) || !near(n.c, o.c, eps) {
		return false
	}
	for k, v := range n.d {
		if !near(v, o.Get(k), eps) {
			return false
		}
	}
	for k, v := range o.d {
		if !near(n.Get(k), v, eps) {
			return false
		}
	}
	return true
}

// SameDefault reports whether two defaults are interchangeable.
func SameDefault(a, b float64) bool { return near(a, b, 0) }

func near(a, b, eps float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if a == b {
		return true
	}
	return math.Abs(a-b) <= eps
}

// WithDefault returns n with a new default value.
func (n NumDict) WithDefault(c float64) NumDict {
	return NumDict{i: n.i, d: n.d, c: c}
}

// Merge returns n overwritten by the explicit entries of o. Both operands
// must share an index.
func (n NumDict) Merge(o NumDict) (NumDict, error) {
	if !n.i.Equal(o.i) {
		return NumDict{}, fmt.Errorf("%w: merge %s into %s", ErrForm, o.i, n.i)
	}
	d := n.Data()
	for k, v := range o.d {
		d[k] = v
	}
	return NumDict{i: n.i, d: d, c: n.c}, nil
}

func (n NumDict) String() string {
	var b strings.Builder
	b.WriteString("{")
	for j, k := range n.Keys() {
		if j > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %g", k, n.d[k])
	}
	fmt.Fprintf(&b, "} c=%g", n.c)
	return b.String()
}
