package numdict

import (
	"sort"
	"strings"
)

const (
	factorSep = "*"
	labelSep  = "."
)

// Key identifies a value in a NumDict. A key is a product of paths; each
// path is a dot-separated label sequence such as "data.direction.left".
// Factors are joined with "*". The empty key is the product identity.
type Key string

// NewKey builds a key from its factor paths. Empty paths are skipped.
func NewKey(paths ...string) Key {
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return Key(strings.Join(parts, factorSep))
}

// Factors returns the paths making up the key.
func (k Key) Factors() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), factorSep)
}

// Mul returns the product of k and o.
func (k Key) Mul(o Key) Key {
	switch {
	case k == "":
		return o
	case o == "":
		return k
	}
	return k + factorSep + o
}

func (k Key) String() string { return string(k) }

// SortKeys sorts keys in place and returns them.
func SortKeys(keys []Key) []Key {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func pathDepth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, labelSep) + 1
}

// truncatePath keeps the first depth labels of p.
func truncatePath(p string, depth int) string {
	if depth <= 0 {
		return ""
	}
	n := 0
	for i := 0; i < len(p); i++ {
		if p[i] == labelSep[0] {
			n++
			if n == depth {
				return p[:i]
			}
		}
	}
	return p
}

// hasPathPrefix reports whether prefix is a label-wise prefix of p.
func hasPathPrefix(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+labelSep)
}

func joinPath(prefix, label string) string {
	if prefix == "" {
		return label
	}
	return prefix + labelSep + label
}
