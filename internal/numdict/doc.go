// Package numdict implements the sparse numeric algebra used by the
// simulation: symbolic keys, key forms, lazily enumerated indices and
// immutable NumDicts with an explicit default value.
//
// A NaN default marks a NumDict as partially defined. Reductions and
// products over such an operand only visit its explicit entries, so an
// unset weight is never silently read as zero.
package numdict

import "errors"

var (
	// ErrUnknownKey is returned when a key does not belong to an index.
	ErrUnknownKey = errors.New("key not in index")

	// ErrForm is returned when operands or reduction forms are incompatible.
	ErrForm = errors.New("incompatible key forms")
)
