package numdict

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// NormalVariate perturbs every value of n with independent Gaussian noise.
// The standard deviation for key k is read from sd at k. The result has a
// NaN default: unvisited keys hold no sample.
func (n NumDict) NormalVariate(sd NumDict, src rand.Source) (NumDict, error) {
	if n.i.space != sd.i.space || !n.i.form.sameShape(sd.i.form) {
		return NumDict{}, fmt.Errorf("%w: normal variate %s with sd %s", ErrForm, n.i, sd.i)
	}
	keys := n.Keys()
	if !math.IsNaN(n.c) {
		keys = n.i.Keys()
		for k := range n.d {
			if !n.i.Contains(k) {
				keys = append(keys, k)
			}
		}
	}
	d := make(map[Key]float64, len(keys))
	for _, k := range SortKeys(keys) {
		dist := distuv.Normal{Mu: n.Get(k), Sigma: sd.Get(k), Src: src}
		d[k] = dist.Rand()
	}
	return NumDict{i: n.i, d: d, c: math.NaN()}, nil
}
