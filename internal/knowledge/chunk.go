package knowledge

import (
	"fmt"

	"github.com/nvandessel/cogloop/internal/numdict"
)

// Dyad is a weighted (dimension, value) feature of a chunk.
type Dyad struct {
	Dim    *Node
	Val    *Node
	Weight float64
}

// Key returns the dimension-value key of the dyad.
func (d Dyad) Key() numdict.Key { return d.Dim.Key().Mul(d.Val.Key()) }

// NewChunk returns a detached chunk. An empty name is replaced with a
// generated label when the chunk is added to a sort.
func NewChunk(name string, dyads ...Dyad) *Node {
	c := newNode(name, KindChunk)
	c.dyads = append([]Dyad(nil), dyads...)
	return c
}

// Dyads returns the features of a chunk.
func (n *Node) Dyads() []Dyad { return append([]Dyad(nil), n.dyads...) }

// CheckChunk returns an error wrapping ErrChunk unless n is a chunk whose
// dyads all name a dimension and a value.
func CheckChunk(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrChunk)
	}
	if n.kind != KindChunk {
		return fmt.Errorf("%w: %s is a %s, not a chunk", ErrChunk, n, n.kind)
	}
	for i, d := range n.dyads {
		if d.Dim == nil || d.Val == nil {
			return fmt.Errorf("%w: %s dyad %d has no dimension or value", ErrChunk, n, i)
		}
	}
	return nil
}
