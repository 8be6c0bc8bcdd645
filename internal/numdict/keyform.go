package numdict

import (
	"fmt"
	"strings"
)

// Slot is one factor position of a KeyForm. A factor matches the slot when
// it extends Prefix by exactly H labels. Agg marks the slot as an aggregate
// axis: it is dropped when a key is projected through the form.
type Slot struct {
	Prefix string
	H      int
	Agg    bool
}

// Depth is the number of labels in a matching factor.
func (s Slot) Depth() int { return pathDepth(s.Prefix) + s.H }

func (s Slot) matches(factor string) bool {
	return hasPathPrefix(factor, s.Prefix) && pathDepth(factor) == s.Depth()
}

func (s Slot) String() string {
	var b strings.Builder
	if s.Prefix == "" {
		b.WriteString("~")
	} else {
		b.WriteString(s.Prefix)
	}
	for range s.H {
		b.WriteString(".?")
	}
	if s.Agg {
		b.WriteString("!")
	}
	return b.String()
}

// KeyForm is the shape shared by all keys of an index.
type KeyForm struct {
	slots []Slot
}

// Form returns a single-slot form for keys extending prefix by h labels.
func Form(prefix string, h int) KeyForm {
	if h < 0 {
		h = 0
	}
	return KeyForm{slots: []Slot{{Prefix: prefix, H: h}}}
}

// FormOf returns a form built from explicit slots.
func FormOf(slots ...Slot) KeyForm {
	return KeyForm{slots: append([]Slot(nil), slots...)}
}

// Slots returns a copy of the form's slots.
func (f KeyForm) Slots() []Slot { return append([]Slot(nil), f.slots...) }

// Len returns the number of slots.
func (f KeyForm) Len() int { return len(f.slots) }

// Mul concatenates two forms.
func (f KeyForm) Mul(o KeyForm) KeyForm {
	slots := make([]Slot, 0, len(f.slots)+len(o.slots))
	slots = append(slots, f.slots...)
	slots = append(slots, o.slots...)
	return KeyForm{slots: slots}
}

// Agg marks every slot as an aggregate axis.
func (f KeyForm) Agg() KeyForm {
	slots := f.Slots()
	for i := range slots {
		slots[i].Agg = true
	}
	return KeyForm{slots: slots}
}

// Coarsen shifts every slot's height by dh. When the height would drop
// below zero, labels are stripped from the prefix instead.
func (f KeyForm) Coarsen(dh int) KeyForm {
	slots := f.Slots()
	for i, s := range slots {
		h := s.H + dh
		if h < 0 {
			s.Prefix = truncatePath(s.Prefix, pathDepth(s.Prefix)+h)
			h = 0
		}
		s.H = h
		slots[i] = s
	}
	return KeyForm{slots: slots}
}

// Strip drops aggregate slots. The result is the shape of a reduction
// or broadcast target.
func (f KeyForm) Strip() KeyForm {
	slots := make([]Slot, 0, len(f.slots))
	for _, s := range f.slots {
		if !s.Agg {
			slots = append(slots, s)
		}
	}
	return KeyForm{slots: slots}
}

// Matches reports whether k has the shape of f.
func (f KeyForm) Matches(k Key) bool {
	factors := k.Factors()
	if len(factors) != len(f.slots) {
		return false
	}
	for i, s := range f.slots {
		if !s.matches(factors[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether two forms are identical.
func (f KeyForm) Equal(o KeyForm) bool {
	if len(f.slots) != len(o.slots) {
		return false
	}
	for i := range f.slots {
		if f.slots[i] != o.slots[i] {
			return false
		}
	}
	return true
}

// LessEq reports whether every key matching f also matches o.
func (f KeyForm) LessEq(o KeyForm) bool {
	if len(f.slots) != len(o.slots) {
		return false
	}
	for i, s := range f.slots {
		t := o.slots[i]
		if !hasPathPrefix(s.Prefix, t.Prefix) || s.Depth() != t.Depth() {
			return false
		}
	}
	return true
}

func (f KeyForm) String() string {
	parts := make([]string, len(f.slots))
	for i, s := range f.slots {
		parts[i] = s.String()
	}
	return strings.Join(parts, factorSep)
}

// project maps a key of a compatible form onto f.Strip().
func (f KeyForm) project(k Key) Key {
	factors := k.Factors()
	parts := make([]string, 0, len(f.slots))
	for i, s := range f.slots {
		if s.Agg || i >= len(factors) {
			continue
		}
		parts = append(parts, truncatePath(factors[i], s.Depth()))
	}
	return NewKey(parts...)
}

// reduces checks that f can group keys of form src.
func (f KeyForm) reduces(src KeyForm) error {
	if len(f.slots) != len(src.slots) {
		return fmt.Errorf("%w: %s has %d slots, operand %s has %d",
			ErrForm, f, len(f.slots), src, len(src.slots))
	}
	for i, s := range f.slots {
		t := src.slots[i]
		if !hasPathPrefix(t.Prefix, s.Prefix) || s.Depth() > t.Depth() {
			return fmt.Errorf("%w: slot %d of %s does not cover %s", ErrForm, i, f, t)
		}
	}
	return nil
}

// sameShape reports whether keys of f and o line up slot by slot.
func (f KeyForm) sameShape(o KeyForm) bool {
	if len(f.slots) != len(o.slots) {
		return false
	}
	for i := range f.slots {
		if f.slots[i].Depth() != o.slots[i].Depth() {
			return false
		}
	}
	return true
}
