package numdict

// Space resolves paths in a namespace. Labels returns the child labels of
// the node at path in registration order, or nil when it has none.
type Space interface {
	Has(path string) bool
	Labels(path string) []string
}

// Index is the set of keys of a given form inside a Space. Keys are
// enumerated on demand, so an index grows with its namespace.
type Index struct {
	space Space
	form  KeyForm
}

// NewIndex returns the index of form inside space. Aggregate slots are
// dropped from the form.
func NewIndex(space Space, form KeyForm) Index {
	return Index{space: space, form: form.Strip()}
}

// Space returns the namespace backing the index.
func (i Index) Space() Space { return i.space }

// Form returns the index's key form.
func (i Index) Form() KeyForm { return i.form }

// Contains reports whether k is a member of the index.
func (i Index) Contains(k Key) bool {
	if !i.form.Matches(k) {
		return false
	}
	if i.space == nil {
		return true
	}
	for _, f := range k.Factors() {
		if !i.space.Has(f) {
			return false
		}
	}
	return true
}

// Keys enumerates the index in namespace order.
func (i Index) Keys() []Key {
	if i.space == nil || len(i.form.slots) == 0 {
		return nil
	}
	keys := []Key{""}
	for _, s := range i.form.slots {
		paths := i.paths(s.Prefix, s.H)
		next := make([]Key, 0, len(keys)*len(paths))
		for _, k := range keys {
			for _, p := range paths {
				next = append(next, k.Mul(Key(p)))
			}
		}
		keys = next
	}
	return keys
}

// Len returns the number of keys in the index.
func (i Index) Len() int {
	if i.space == nil || len(i.form.slots) == 0 {
		return 0
	}
	n := 1
	for _, s := range i.form.slots {
		n *= len(i.paths(s.Prefix, s.H))
	}
	return n
}

func (i Index) paths(prefix string, h int) []string {
	if h == 0 {
		if prefix == "" || i.space.Has(prefix) {
			return []string{prefix}
		}
		return nil
	}
	var out []string
	for _, m := range i.space.Labels(prefix) {
		out = append(out, i.paths(joinPath(prefix, m), h-1)...)
	}
	return out
}

// Equal reports whether two indices share a namespace and form.
func (i Index) Equal(o Index) bool {
	return i.space == o.space && i.form.Equal(o.form)
}

// Mul returns the product index. Both indices must share a namespace.
func (i Index) Mul(o Index) Index {
	return Index{space: i.space, form: i.form.Mul(o.form)}
}

// DependsOn reports whether membership of the index can change when the
// node at path gains members.
func (i Index) DependsOn(path string) bool {
	for _, s := range i.form.slots {
		if s.H == 0 {
			continue
		}
		if hasPathPrefix(path, s.Prefix) && pathDepth(path) < s.Depth() {
			return true
		}
	}
	return false
}

func (i Index) String() string { return i.form.String() }
