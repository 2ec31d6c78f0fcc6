package voice

import "github.com/Cignor/Collider-sub001/signal"

// Composite sums a fixed set of sub-voices through one shared effect
// chain. Sub-voices keep their own parameter stores and are reachable
// only through the composite.
type Composite struct {
	base
	children []Voice
	scratch  signal.Float64
}

// NewComposite creates a composite voice over the given sub-voices.
func NewComposite(id uint64, children ...Voice) *Composite {
	return &Composite{
		base:     newBase(id, "composite"),
		children: children,
	}
}

// Children returns the sub-voices.
func (c *Composite) Children() []Voice {
	return c.children
}

// Prepare prepares every sub-voice for the format.
func (c *Composite) Prepare(sampleRate float64, blockSize int) {
	c.scratch = signal.EmptyFloat64(2, blockSize)
	for _, child := range c.children {
		child.Prepare(sampleRate, blockSize)
	}
	c.fx.Prepare(sampleRate, blockSize)
}

// Render sums the sub-voices, scaled to keep the mix in range, and
// runs the shared chain over the sum.
func (c *Composite) Render(out signal.Float64) {
	out.Clear()
	if len(c.children) == 0 || c.scratch == nil {
		return
	}
	gain := 1 / float64(len(c.children))
	for _, child := range c.children {
		child.Render(c.scratch)
		out.Add(c.scratch, gain)
	}
	c.fx.Process(out)
}

// Release releases every sub-voice.
func (c *Composite) Release() {
	for _, child := range c.children {
		child.Release()
	}
}
