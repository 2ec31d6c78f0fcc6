package param

import (
	"math"
	"sync/atomic"
)

// Smoothed is a one-pole smoothed value used to ramp continuously
// modulated targets without zipper noise. The target is set from any
// goroutine; Next and Snap are called by the render path only.
type Smoothed struct {
	target  atomic.Uint64
	current float64
	coeff   float64
}

// NewSmoothed creates a smoothed value. Coeff in (0, 1] is the fraction
// of the remaining distance covered per sample; 1 disables smoothing.
func NewSmoothed(initial, coeff float64) *Smoothed {
	s := &Smoothed{current: initial, coeff: coeff}
	s.target.Store(math.Float64bits(initial))
	return s
}

// SetTarget updates the target value.
func (s *Smoothed) SetTarget(v float64) {
	s.target.Store(math.Float64bits(v))
}

// Target returns the current target value.
func (s *Smoothed) Target() float64 {
	return math.Float64frombits(s.target.Load())
}

// Next advances the ramp by one sample and returns the new value.
func (s *Smoothed) Next() float64 {
	t := s.Target()
	s.current += (t - s.current) * s.coeff
	return s.current
}

// NextN advances the ramp by n samples in closed form and returns the
// new value.
func (s *Smoothed) NextN(n int) float64 {
	if n <= 0 {
		return s.current
	}
	t := s.Target()
	s.current = t - (t-s.current)*math.Pow(1-s.coeff, float64(n))
	return s.current
}

// Value returns the current value without advancing the ramp.
func (s *Smoothed) Value() float64 {
	return s.current
}

// Snap jumps the ramp to the target immediately.
func (s *Smoothed) Snap() {
	s.current = s.Target()
}
