package system

import (
	"fmt"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
)

// Update is a deferred state change carried by an Event.
type Update interface {
	// Apply performs the change. It is called once, when the event lands.
	Apply() error
	// Affects reports whether applying the update changes site.
	Affects(site *Site) bool
	String() string
}

// Method selects how a SiteUpdate combines with a site's current value.
type Method int

const (
	// MethodPush shifts the history ring and stores the new value at lag 0.
	MethodPush Method = iota
	// MethodWrite overwrites the explicit entries of the current value.
	MethodWrite
	// MethodAdd adds the new value into the current value.
	MethodAdd
)

func (m Method) String() string {
	switch m {
	case MethodPush:
		return "push"
	case MethodWrite:
		return "write"
	case MethodAdd:
		return "add"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// SiteUpdate replaces, overwrites or accumulates into a site's value.
type SiteUpdate struct {
	site   *Site
	data   numdict.NumDict
	method Method
}

// Site returns the target site.
func (u *SiteUpdate) Site() *Site { return u.site }

// Data returns the value carried by the update.
func (u *SiteUpdate) Data() numdict.NumDict { return u.data }

// Method returns the combination method.
func (u *SiteUpdate) Method() Method { return u.method }

// Apply implements Update.
func (u *SiteUpdate) Apply() error {
	switch u.method {
	case MethodPush:
		u.site.push(u.data)
	case MethodWrite:
		merged, err := u.site.Current().Merge(u.data)
		if err != nil {
			return fmt.Errorf("write update: %w", err)
		}
		u.site.history[0] = merged
	case MethodAdd:
		sum, err := u.site.Current().Sum(u.data)
		if err != nil {
			return fmt.Errorf("add update: %w", err)
		}
		u.site.history[0] = sum.WithDefault(u.site.c)
	default:
		return fmt.Errorf("unknown update method %v", u.method)
	}
	return nil
}

// Affects implements Update.
func (u *SiteUpdate) Affects(site *Site) bool { return u.site == site }

func (u *SiteUpdate) String() string {
	return fmt.Sprintf("%s %s <- %s", u.method, u.site.Index(), u.data)
}

// SortUpdate adds terms to a sort when applied. Every site whose index
// enumerates the sort's members is affected.
type SortUpdate struct {
	Sort  *knowledge.Node
	Terms []*knowledge.Node
}

// Apply implements Update.
func (u *SortUpdate) Apply() error {
	for _, t := range u.Terms {
		if t.Parent() == u.Sort {
			continue
		}
		if err := u.Sort.Add(t); err != nil {
			return fmt.Errorf("sort update %s: %w", u.Sort.Path(), err)
		}
	}
	return nil
}

// Affects implements Update.
func (u *SortUpdate) Affects(site *Site) bool {
	return site.Index().DependsOn(u.Sort.Path())
}

func (u *SortUpdate) String() string {
	return fmt.Sprintf("sort %s += %d terms", u.Sort.Path(), len(u.Terms))
}
