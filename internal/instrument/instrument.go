// Package instrument describes the option underlyings the engine can replay.
package instrument

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Underlying is an index identifier such as NIFTY.
type Underlying string

const (
	NIFTY  Underlying = "NIFTY"
	SENSEX Underlying = "SENSEX"
)

// Spec is the per-underlying contract constants.
type Spec struct {
	Name          Underlying   `json:"name"`
	LotSize       int          `json:"lotSize"`
	StrikeStep    float64      `json:"strikeStep"`
	ExpiryWeekday time.Weekday `json:"expiryWeekday"`
	Exchange      string       `json:"exchange"`
	Token         string       `json:"token"` // spot index token on the data feed
}

// RoundToStrike rounds price to the nearest multiple of the strike step.
func (s Spec) RoundToStrike(price float64) float64 {
	return math.Round(price/s.StrikeStep) * s.StrikeStep
}

// Validate checks the constants are usable.
func (s Spec) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("instrument: empty name")
	case s.LotSize <= 0:
		return fmt.Errorf("instrument %s: lot size must be positive", s.Name)
	case s.StrikeStep <= 0:
		return fmt.Errorf("instrument %s: strike step must be positive", s.Name)
	case s.Exchange == "" || s.Token == "":
		return fmt.Errorf("instrument %s: exchange and token are required", s.Name)
	}
	return nil
}

// Defaults returns the built-in NIFTY and SENSEX specs.
func Defaults() []Spec {
	return []Spec{
		{Name: NIFTY, LotSize: 65, StrikeStep: 50, ExpiryWeekday: time.Tuesday, Exchange: "NSE", Token: "99926000"},
		{Name: SENSEX, LotSize: 20, StrikeStep: 100, ExpiryWeekday: time.Thursday, Exchange: "BSE", Token: "99919000"},
	}
}

// Registry maps underlyings to their specs. It is not modified after
// construction.
type Registry struct {
	specs map[Underlying]Spec
}

// NewRegistry validates specs and indexes them by name.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[Underlying]Spec, len(specs))}
	for _, s := range specs {
		s.Name = Underlying(strings.ToUpper(string(s.Name)))
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("instrument %s: defined twice", s.Name)
		}
		r.specs[s.Name] = s
	}
	return r, nil
}

// DefaultRegistry is NewRegistry(Defaults()...).
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup finds a spec by name, case-insensitively.
func (r *Registry) Lookup(name Underlying) (Spec, bool) {
	s, ok := r.specs[Underlying(strings.ToUpper(string(name)))]
	return s, ok
}

// Names lists the registered underlyings in sorted order.
func (r *Registry) Names() []Underlying {
	out := make([]Underlying, 0, len(r.specs))
	for n := range r.specs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
