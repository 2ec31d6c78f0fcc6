// Package param implements named voice parameters with declared ranges
// and defaults. Values are stored as atomics: they are written by the
// dispatch goroutine and read once per block by the render path.
package param

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Spec declares a single named parameter.
type Spec struct {
	Name string
	Min  float64
	Max  float64
	Def  float64
}

// Clamp clips v to the declared range.
func (s Spec) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return s.Def
	}
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

// Normalize maps a plain value to [0, 1] within the declared range.
func (s Spec) Normalize(v float64) float64 {
	if s.Max == s.Min {
		return 0
	}
	return (s.Clamp(v) - s.Min) / (s.Max - s.Min)
}

// Denormalize maps a [0, 1] value to the declared range.
func (s Spec) Denormalize(v float64) float64 {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return s.Min + v*(s.Max-s.Min)
}

// Store is a set of parameters with stable ordering. Lookups by name
// happen on the dispatch goroutine, reads by index on the render path.
type Store struct {
	specs  []Spec
	index  map[string]int
	values []atomic.Uint64
}

// NewStore creates a store with all values at their defaults.
func NewStore(specs ...Spec) *Store {
	s := &Store{
		specs:  specs,
		index:  make(map[string]int, len(specs)),
		values: make([]atomic.Uint64, len(specs)),
	}
	for i, spec := range specs {
		s.index[spec.Name] = i
		s.values[i].Store(math.Float64bits(spec.Def))
	}
	return s
}

// Specs returns the declared parameters in registration order.
func (s *Store) Specs() []Spec {
	return s.specs
}

// Lookup returns the spec for name.
func (s *Store) Lookup(name string) (Spec, bool) {
	i, ok := s.index[name]
	if !ok {
		return Spec{}, false
	}
	return s.specs[i], true
}

// Set stores a plain-unit value, clamped to the declared range.
func (s *Store) Set(name string, v float64) error {
	i, ok := s.index[name]
	if !ok {
		return fmt.Errorf("unknown parameter: %q", name)
	}
	s.values[i].Store(math.Float64bits(s.specs[i].Clamp(v)))
	return nil
}

// SetNormalized stores a [0, 1] value mapped to the declared range.
func (s *Store) SetNormalized(name string, v float64) error {
	i, ok := s.index[name]
	if !ok {
		return fmt.Errorf("unknown parameter: %q", name)
	}
	s.values[i].Store(math.Float64bits(s.specs[i].Denormalize(v)))
	return nil
}

// Get returns the current plain-unit value, or the default for an
// unknown name.
func (s *Store) Get(name string) float64 {
	i, ok := s.index[name]
	if !ok {
		return 0
	}
	return s.at(i)
}

// GetNormalized returns the current value mapped to [0, 1].
func (s *Store) GetNormalized(name string) float64 {
	i, ok := s.index[name]
	if !ok {
		return 0
	}
	return s.specs[i].Normalize(s.at(i))
}

// Image returns the little-endian float64 image of all values in
// registration order. Used for state snapshots.
func (s *Store) Image() []float64 {
	img := make([]float64, len(s.specs))
	for i := range s.specs {
		img[i] = s.at(i)
	}
	return img
}

// ApplyImage restores values from a snapshot image. Extra values are
// ignored, missing values keep their current state, every applied value
// is clamped.
func (s *Store) ApplyImage(img []float64) {
	for i := range s.specs {
		if i >= len(img) {
			return
		}
		s.values[i].Store(math.Float64bits(s.specs[i].Clamp(img[i])))
	}
}

func (s *Store) at(i int) float64 {
	return math.Float64frombits(s.values[i].Load())
}
