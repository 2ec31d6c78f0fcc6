package stretch

import (
	"math"

	"github.com/Cignor/Collider-sub001/signal"
)

// Resampler is the naive linear-interpolation resampling FIFO engine.
// It cannot decouple pitch from speed: the pitch ratio folds into the
// read step, which is the documented behavior of the cheap engine.
//
// Ratio convention: direct multiplier. SetRatio(2) consumes two input
// frames per output frame.
type Resampler struct {
	fifo  [2][]float64
	pos   float64
	ratio float64
	pitch float64
}

// NewResampler creates a resampling FIFO engine at unity rate.
func NewResampler() *Resampler {
	return &Resampler{ratio: 1, pitch: 1}
}

// SetRatio sets input frames consumed per output frame.
func (r *Resampler) SetRatio(ratio float64) {
	if ratio > 0 && !math.IsInf(ratio, 0) {
		r.ratio = ratio
	}
}

// SetPitch sets the pitch ratio. It folds into the read step.
func (r *Resampler) SetPitch(pitch float64) {
	if pitch > 0 && !math.IsInf(pitch, 0) {
		r.pitch = pitch
	}
}

func (r *Resampler) step() float64 {
	return r.ratio * r.pitch
}

// Put appends input frames to the FIFO.
func (r *Resampler) Put(block signal.Float64) {
	for ch := range r.fifo {
		if ch >= block.NumChannels() {
			break
		}
		r.fifo[ch] = append(r.fifo[ch], block[ch]...)
	}
}

// Available returns the number of output frames receivable now.
func (r *Resampler) Available() int {
	n := len(r.fifo[0])
	if n < 2 {
		return 0
	}
	last := float64(n - 2)
	if r.pos > last {
		return 0
	}
	return int((last-r.pos)/r.step()) + 1
}

// Receive produces up to block.Size() interpolated frames.
func (r *Resampler) Receive(block signal.Float64) int {
	want := block.Size()
	produced := 0
	step := r.step()
	for produced < want {
		idx := int(r.pos)
		if idx+1 >= len(r.fifo[0]) {
			break
		}
		frac := r.pos - float64(idx)
		for ch := range block {
			if ch >= len(r.fifo) {
				break
			}
			src := r.fifo[ch]
			block[ch][produced] = src[idx] + frac*(src[idx+1]-src[idx])
		}
		r.pos += step
		produced++
	}
	r.compact()
	return produced
}

// Flush discards all buffered input and resets the cursor.
func (r *Resampler) Flush() {
	for ch := range r.fifo {
		r.fifo[ch] = r.fifo[ch][:0]
	}
	r.pos = 0
}

// Latency returns the single frame of interpolation lookahead.
func (r *Resampler) Latency() int {
	return 1
}

// compact discards fully consumed frames from the FIFO head.
func (r *Resampler) compact() {
	drop := int(r.pos)
	if drop <= 0 {
		return
	}
	for ch := range r.fifo {
		if drop < len(r.fifo[ch]) {
			n := copy(r.fifo[ch], r.fifo[ch][drop:])
			r.fifo[ch] = r.fifo[ch][:n]
		} else {
			r.fifo[ch] = r.fifo[ch][:0]
		}
	}
	r.pos -= float64(drop)
}
