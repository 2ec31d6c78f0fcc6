package voice

import (
	"math"

	"github.com/Cignor/Collider-sub001/param"
	"github.com/Cignor/Collider-sub001/signal"
)

// Sine is the oscillator voice kind.
type Sine struct {
	base
	sampleRate float64
	phase      float64
}

// NewSine creates a sine voice with the given external id.
func NewSine(id uint64) *Sine {
	return &Sine{
		base: newBase(id, "sine", param.Spec{Name: "freq", Min: 20, Max: 8000, Def: 440}),
	}
}

// Prepare allocates render state for the format.
func (s *Sine) Prepare(sampleRate float64, blockSize int) {
	s.sampleRate = sampleRate
	s.fx.Prepare(sampleRate, blockSize)
}

// Render overwrites out with one block of the oscillator through the
// effect chain.
func (s *Sine) Render(out signal.Float64) {
	if s.sampleRate == 0 {
		out.Clear()
		return
	}
	step := 2 * math.Pi * s.store.Get("freq") / s.sampleRate
	for i := 0; i < out.Size(); i++ {
		v := math.Sin(s.phase)
		s.phase += step
		for ch := range out {
			out[ch][i] = v
		}
	}
	if s.phase > 2*math.Pi {
		s.phase = math.Mod(s.phase, 2*math.Pi)
	}
	s.fx.Process(out)
}
