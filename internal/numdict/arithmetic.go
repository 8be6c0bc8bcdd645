package numdict

import (
	"fmt"
	"math"
)

// mapValues applies f to every explicit value and to the default.
func (n NumDict) mapValues(f func(float64) float64) NumDict {
	d := make(map[Key]float64, len(n.d))
	for k, v := range n.d {
		d[k] = f(v)
	}
	return NumDict{i: n.i, d: d, c: f(n.c)}
}

// Neg negates every value.
func (n NumDict) Neg() NumDict { return n.mapValues(func(x float64) float64 { return -x }) }

// Abs takes the absolute value of every value.
func (n NumDict) Abs() NumDict { return n.mapValues(math.Abs) }

// Scale multiplies every value by x.
func (n NumDict) Scale(x float64) NumDict {
	return n.mapValues(func(v float64) float64 { return v * x })
}

// Shift adds x to every value.
func (n NumDict) Shift(x float64) NumDict {
	return n.mapValues(func(v float64) float64 { return v + x })
}

// Pow raises every value to x.
func (n NumDict) Pow(x float64) NumDict {
	return n.mapValues(func(v float64) float64 { return math.Pow(v, x) })
}

// Exp applies the natural exponential.
func (n NumDict) Exp() NumDict { return n.mapValues(math.Exp) }

// Log applies the natural logarithm.
func (n NumDict) Log() NumDict { return n.mapValues(math.Log) }

// Tanh applies the hyperbolic tangent.
func (n NumDict) Tanh() NumDict { return n.mapValues(math.Tanh) }

// Logit maps probabilities in (0, 1) onto the real line.
func (n NumDict) Logit() NumDict {
	return n.mapValues(func(p float64) float64 { return math.Log(p / (1 - p)) })
}

// Expit is the logistic function, the inverse of Logit.
func (n NumDict) Expit() NumDict {
	return n.mapValues(func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })
}

// BoundMax caps every value at x.
func (n NumDict) BoundMax(x float64) NumDict {
	return n.mapValues(func(v float64) float64 {
		if v > x {
			return x
		}
		return v
	})
}

// BoundMin floors every value at x.
func (n NumDict) BoundMin(x float64) NumDict {
	return n.mapValues(func(v float64) float64 {
		if v < x {
			return x
		}
		return v
	})
}

func add(a, b float64) float64 { return a + b }
func sub(a, b float64) float64 { return a - b }
func mul(a, b float64) float64 { return a * b }
func div(a, b float64) float64 { return a / b }

// Sum adds others to n elementwise. All operands must share n's shape.
func (n NumDict) Sum(others ...NumDict) (NumDict, error) { return n.fold("sum", add, others) }

// Sub subtracts others from n elementwise.
func (n NumDict) Sub(others ...NumDict) (NumDict, error) { return n.fold("sub", sub, others) }

// Mul multiplies n by others elementwise.
func (n NumDict) Mul(others ...NumDict) (NumDict, error) { return n.fold("mul", mul, others) }

// Div divides n by others elementwise.
func (n NumDict) Div(others ...NumDict) (NumDict, error) { return n.fold("div", div, others) }

// Max takes the elementwise maximum. NaN propagates.
func (n NumDict) Max(others ...NumDict) (NumDict, error) { return n.fold("max", math.Max, others) }

// Min takes the elementwise minimum. NaN propagates.
func (n NumDict) Min(others ...NumDict) (NumDict, error) { return n.fold("min", math.Min, others) }

// SumBroadcast adds o to n, reading o at the projection of each key of n
// through by. Aggregate slots of by are the axes o is broadcast along.
func (n NumDict) SumBroadcast(o NumDict, by KeyForm) (NumDict, error) {
	return n.binary("sum", add, o, &by)
}

// MulBroadcast multiplies n by o broadcast along the aggregate slots of by.
func (n NumDict) MulBroadcast(o NumDict, by KeyForm) (NumDict, error) {
	return n.binary("mul", mul, o, &by)
}

// DivBroadcast divides n by o broadcast along the aggregate slots of by.
func (n NumDict) DivBroadcast(o NumDict, by KeyForm) (NumDict, error) {
	return n.binary("div", div, o, &by)
}

func (n NumDict) fold(name string, op func(a, b float64) float64, others []NumDict) (NumDict, error) {
	out := n
	for _, o := range others {
		var err error
		if out, err = out.binary(name, op, o, nil); err != nil {
			return NumDict{}, err
		}
	}
	return out, nil
}

// binary combines n with o. The iteration set depends on the operands:
// a NaN default restricts it to n's explicit keys, an elementwise op over
// defined defaults visits the union of explicit keys, and a broadcast
// visits all of n's index.
func (n NumDict) binary(name string, op func(a, b float64) float64, o NumDict, by *KeyForm) (NumDict, error) {
	if n.i.space != o.i.space {
		return NumDict{}, fmt.Errorf("%w: %s across namespaces", ErrForm, name)
	}
	project := func(k Key) Key { return k }
	if by == nil {
		if !n.i.form.sameShape(o.i.form) {
			return NumDict{}, fmt.Errorf("%w: %s %s with %s", ErrForm, name, n.i, o.i)
		}
	} else {
		if err := by.reduces(n.i.form); err != nil {
			return NumDict{}, fmt.Errorf("%s broadcast: %w", name, err)
		}
		if !by.Strip().sameShape(o.i.form) {
			return NumDict{}, fmt.Errorf("%w: %s broadcast %s onto %s", ErrForm, name, o.i, by)
		}
		b := *by
		project = b.project
	}

	d := make(map[Key]float64)
	apply := func(k Key) { d[k] = op(n.Get(k), o.Get(project(k))) }
	switch {
	case math.IsNaN(n.c):
		for k := range n.d {
			apply(k)
		}
	case by == nil:
		for k := range n.d {
			apply(k)
		}
		for k := range o.d {
			if _, seen := d[k]; !seen && n.i.Contains(k) {
				apply(k)
			}
		}
	default:
		for _, k := range n.i.Keys() {
			apply(k)
		}
		for k := range n.d {
			if _, seen := d[k]; !seen {
				apply(k)
			}
		}
	}
	return NumDict{i: n.i, d: d, c: op(n.c, o.c)}, nil
}
