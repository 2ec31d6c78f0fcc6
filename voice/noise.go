package voice

import (
	"math"

	"github.com/Cignor/Collider-sub001/signal"
)

// Noise is the white noise voice kind. The generator is a xorshift64
// seeded from the voice id, so two voices with the same id render the
// same stream.
type Noise struct {
	base
	state uint64
}

// NewNoise creates a noise voice with the given external id.
func NewNoise(id uint64) *Noise {
	n := &Noise{base: newBase(id, "noise")}
	n.reseed()
	return n
}

func (n *Noise) reseed() {
	n.state = n.id*0x9e3779b97f4a7c15 + 1
}

func (n *Noise) next() float64 {
	x := n.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	n.state = x
	return float64(int64(x)) / math.MaxInt64
}

// Prepare allocates render state and restarts the stream.
func (n *Noise) Prepare(sampleRate float64, blockSize int) {
	n.fx.Prepare(sampleRate, blockSize)
	n.reseed()
}

// Render overwrites out with one block of noise through the effect
// chain.
func (n *Noise) Render(out signal.Float64) {
	for i := 0; i < out.Size(); i++ {
		v := n.next()
		for ch := range out {
			out[ch][i] = v
		}
	}
	n.fx.Process(out)
}
