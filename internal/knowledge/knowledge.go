// Package knowledge provides the symbolic namespace that keys resolve
// against: a root holding families, families holding sorts, and sorts
// holding terms (atoms, chunks and rules).
package knowledge

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nvandessel/cogloop/internal/numdict"
)

var (
	// ErrInvalidName is returned for labels that cannot appear in a path.
	ErrInvalidName = errors.New("invalid label")

	// ErrKind is returned when a node is placed under the wrong parent kind.
	ErrKind = errors.New("invalid parent kind")

	// ErrDuplicate is returned when a label is already taken.
	ErrDuplicate = errors.New("duplicate label")

	// ErrAttached is returned when a node already has a parent.
	ErrAttached = errors.New("node already attached")

	// ErrChunk is returned for a missing chunk or a malformed dyad.
	ErrChunk = errors.New("invalid chunk")

	// ErrRule is returned for a rule without conditions or action.
	ErrRule = errors.New("invalid rule")
)

// Kind classifies a namespace node.
type Kind int

const (
	KindRoot Kind = iota
	KindFamily
	KindSort
	KindAtom
	KindChunk
	KindRule
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindFamily:
		return "family"
	case KindSort:
		return "sort"
	case KindAtom:
		return "atom"
	case KindChunk:
		return "chunk"
	case KindRule:
		return "rule"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// height is the number of labels between a node and the terms below it.
func (k Kind) height() int {
	switch k {
	case KindRoot:
		return 3
	case KindFamily:
		return 2
	case KindSort:
		return 1
	}
	return 0
}

// Node is a member of the namespace tree.
type Node struct {
	name    string
	kind    Kind
	parent  *Node
	members map[string]*Node
	order   []string
	dyads   []Dyad
	conds   []Weighted
	action  Weighted
	counter int
}

// NewRoot returns an empty namespace.
func NewRoot() *Node { return newNode("", KindRoot) }

// NewFamily returns a detached family.
func NewFamily(name string) *Node { return newNode(name, KindFamily) }

// NewSort returns a detached sort.
func NewSort(name string) *Node { return newNode(name, KindSort) }

// NewAtom returns a detached atom.
func NewAtom(name string) *Node { return newNode(name, KindAtom) }

func newNode(name string, kind Kind) *Node {
	return &Node{name: name, kind: kind, members: map[string]*Node{}}
}

// Name returns the node's label.
func (n *Node) Name() string { return n.name }

// Kind returns the node's kind.
func (n *Node) Kind() Kind { return n.kind }

// Parent returns the node's parent, or nil.
func (n *Node) Parent() *Node { return n.parent }

// Root returns the top of the tree holding n.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// Path returns the dot-separated labels from the root to n.
func (n *Node) Path() string {
	if n.parent == nil {
		return ""
	}
	if p := n.parent.Path(); p != "" {
		return p + "." + n.name
	}
	return n.name
}

// Key returns the single-factor key naming n.
func (n *Node) Key() numdict.Key { return numdict.NewKey(n.Path()) }

// Add attaches child under n.
func (n *Node) Add(child *Node) error {
	if child.parent != nil {
		return fmt.Errorf("add %q: %w", child.name, ErrAttached)
	}
	if !parentKind(n.kind, child.kind) {
		return fmt.Errorf("add %s %q under %s: %w", child.kind, child.name, n.kind, ErrKind)
	}
	if child.name == "" && (child.kind == KindChunk || child.kind == KindRule) {
		child.name = fmt.Sprintf("_%d", n.counter)
		n.counter++
	}
	if err := validLabel(child.name); err != nil {
		return err
	}
	if _, ok := n.members[child.name]; ok {
		return fmt.Errorf("add %q under %q: %w", child.name, n.Path(), ErrDuplicate)
	}
	child.parent = n
	n.members[child.name] = child
	n.order = append(n.order, child.name)
	return nil
}

// Family creates and attaches a family under a root.
func (n *Node) Family(name string) (*Node, error) {
	f := NewFamily(name)
	if err := n.Add(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Sort creates and attaches a sort under a family, populating it with
// the given atoms.
func (n *Node) Sort(name string, atoms ...string) (*Node, error) {
	s := NewSort(name)
	if err := n.Add(s); err != nil {
		return nil, err
	}
	for _, a := range atoms {
		if err := s.Add(NewAtom(a)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Atom creates and attaches an atom under a sort.
func (n *Node) Atom(name string) (*Node, error) {
	a := NewAtom(name)
	if err := n.Add(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Member returns the child labelled name, or nil.
func (n *Node) Member(name string) *Node { return n.members[name] }

// Members returns the children of n in registration order.
func (n *Node) Members() []*Node {
	out := make([]*Node, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.members[name])
	}
	return out
}

// Resolve finds the node at a path relative to n.
func (n *Node) Resolve(path string) (*Node, bool) {
	if path == "" {
		return n, true
	}
	cur := n
	for _, label := range strings.Split(path, ".") {
		next, ok := cur.members[label]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Has implements numdict.Space.
func (n *Node) Has(path string) bool {
	_, ok := n.Resolve(path)
	return ok
}

// Labels implements numdict.Space.
func (n *Node) Labels(path string) []string {
	node, ok := n.Resolve(path)
	if !ok {
		return nil
	}
	return append([]string(nil), node.order...)
}

func (n *Node) String() string {
	if n.parent == nil && n.kind == KindRoot {
		return "root"
	}
	return n.Path()
}

// FormOf returns the key form of the terms under n, coarsened by the
// optional height shifts.
func FormOf(n *Node, dh ...int) numdict.KeyForm {
	f := numdict.Form(n.Path(), n.kind.height())
	for _, d := range dh {
		f = f.Coarsen(d)
	}
	return f
}

func parentKind(parent, child Kind) bool {
	switch child {
	case KindFamily:
		return parent == KindRoot
	case KindSort:
		return parent == KindFamily
	case KindAtom, KindChunk, KindRule:
		return parent == KindSort
	}
	return false
}

func validLabel(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	for i, r := range name {
		ok := r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r))
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}
