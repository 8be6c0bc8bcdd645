package system

import (
	"fmt"

	"github.com/nvandessel/cogloop/internal/numdict"
)

// Site is a versioned numeric value over a fixed index. It keeps the
// current value and the lags values before it.
type Site struct {
	index   numdict.Index
	c       float64
	history []numdict.NumDict
}

// NewSite returns a site over index with default c, initial data and a
// history of lags previous values.
func NewSite(index numdict.Index, data map[numdict.Key]float64, c float64, lags int) (*Site, error) {
	if lags < 0 {
		lags = 0
	}
	init, err := numdict.New(index, data, c)
	if err != nil {
		return nil, fmt.Errorf("new site: %w", err)
	}
	s := &Site{index: index, c: c, history: make([]numdict.NumDict, lags+1)}
	s.history[0] = init
	for i := 1; i <= lags; i++ {
		s.history[i] = numdict.Empty(index, c)
	}
	return s, nil
}

// Index returns the site's index.
func (s *Site) Index() numdict.Index { return s.index }

// Default returns the site's default constant.
func (s *Site) Default() float64 { return s.c }

// Lags returns the number of previous values retained.
func (s *Site) Lags() int { return len(s.history) - 1 }

// Current returns the value at lag 0.
func (s *Site) Current() numdict.NumDict { return s.history[0] }

// At returns the value lag steps back.
func (s *Site) At(lag int) (numdict.NumDict, bool) {
	if lag < 0 || lag >= len(s.history) {
		return numdict.NumDict{}, false
	}
	return s.history[lag], true
}

// New returns a NumDict over the site's index with the site's default.
func (s *Site) New(data map[numdict.Key]float64) (numdict.NumDict, error) {
	return numdict.New(s.index, data, s.c)
}

// Update prepares an update of the site with data. The data must share
// the site's index and default.
func (s *Site) Update(data numdict.NumDict, method Method) (*SiteUpdate, error) {
	if !data.Index().Equal(s.index) {
		return nil, fmt.Errorf("update %s with %s: %w", s.index, data.Index(), ErrWiring)
	}
	if method != MethodAdd && !numdict.SameDefault(data.Default(), s.c) {
		return nil, fmt.Errorf("update %s: default %g, site default %g: %w",
			s.index, data.Default(), s.c, ErrWiring)
	}
	return &SiteUpdate{site: s, data: data, method: method}, nil
}

// UpdateData is Update with the value built from raw data.
func (s *Site) UpdateData(data map[numdict.Key]float64, method Method) (*SiteUpdate, error) {
	nd, err := s.New(data)
	if err != nil {
		return nil, err
	}
	return s.Update(nd, method)
}

// AffectedBy reports whether any of updates changes the site.
func (s *Site) AffectedBy(updates ...Update) bool {
	for _, u := range updates {
		if u.Affects(s) {
			return true
		}
	}
	return false
}

func (s *Site) push(d numdict.NumDict) {
	copy(s.history[1:], s.history[:len(s.history)-1])
	s.history[0] = d
}

func (s *Site) String() string { return fmt.Sprintf("site(%s)", s.index) }
