package knowledge

import "fmt"

// Weighted is a chunk with the weight it carries inside a rule.
type Weighted struct {
	Chunk  *Node
	Weight float64
}

// NewRule returns a detached rule firing action when its conditions
// match. An empty name is replaced with a generated label when the rule
// is added to a sort.
func NewRule(name string, action Weighted, conds ...Weighted) *Node {
	r := newNode(name, KindRule)
	r.conds = append([]Weighted(nil), conds...)
	r.action = action
	return r
}

// Conditions returns the left-hand chunks of a rule.
func (n *Node) Conditions() []Weighted { return append([]Weighted(nil), n.conds...) }

// Action returns the right-hand chunk of a rule.
func (n *Node) Action() Weighted { return n.action }

// CheckRule returns an error wrapping ErrRule unless n is a rule with at
// least one condition and an action, every one a well-formed chunk.
func CheckRule(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrRule)
	}
	if n.kind != KindRule {
		return fmt.Errorf("%w: %s is a %s, not a rule", ErrRule, n, n.kind)
	}
	if len(n.conds) == 0 {
		return fmt.Errorf("%w: %s has no conditions", ErrRule, n)
	}
	for _, c := range append(n.Conditions(), n.action) {
		if err := CheckChunk(c.Chunk); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRule, n, err)
		}
	}
	return nil
}
