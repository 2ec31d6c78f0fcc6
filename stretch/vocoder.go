package stretch

import (
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/Cignor/Collider-sub001/signal"
)

const (
	vocoderFrameSize   = 1024
	vocoderAnalysisHop = 256

	// normFloor guards the overlap-add normalization against division
	// by a vanishing window sum at frame edges.
	normFloor = 1e-12
)

// Vocoder is the streaming phase-vocoder engine. Frames are analyzed at
// a fixed hop, phase-propagated per bin and overlap-added at a synthesis
// hop scaled by the stretch ratio. Pitch is applied as a linear resample
// of the stretched output.
//
// Ratio convention: duration multiplier. SetRatio(2) makes the output
// twice as long as the input.
type Vocoder struct {
	ratio float64
	pitch float64

	plan   *algofft.Plan[complex128]
	window []float64
	omega  []float64

	chans    [2]vocoderChannel
	pitchPos float64
}

// vocoderChannel carries the per-channel analysis and synthesis state.
type vocoderChannel struct {
	input     []float64
	prevPhase []float64
	sumPhase  []float64
	outAcc    []float64
	normAcc   []float64
	spectrum  []complex128
	timeFrame []complex128
	ready     []float64
}

// NewVocoder creates a phase-vocoder engine at unity stretch and pitch.
func NewVocoder() *Vocoder {
	plan, err := algofft.NewPlan64(vocoderFrameSize)
	if err != nil {
		// the frame size is a power of two, plan creation cannot fail
		panic(err)
	}
	v := &Vocoder{ratio: 1, pitch: 1, plan: plan}
	v.window = make([]float64, vocoderFrameSize)
	v.omega = make([]float64, vocoderFrameSize/2+1)
	for i := range v.window {
		v.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(vocoderFrameSize))
	}
	for k := range v.omega {
		v.omega[k] = 2 * math.Pi * float64(k) / float64(vocoderFrameSize)
	}
	for ch := range v.chans {
		c := &v.chans[ch]
		c.prevPhase = make([]float64, vocoderFrameSize/2+1)
		c.sumPhase = make([]float64, vocoderFrameSize/2+1)
		c.outAcc = make([]float64, vocoderFrameSize)
		c.normAcc = make([]float64, vocoderFrameSize)
		c.spectrum = make([]complex128, vocoderFrameSize)
		c.timeFrame = make([]complex128, vocoderFrameSize)
	}
	return v
}

// SetRatio sets the output duration multiplier.
func (v *Vocoder) SetRatio(r float64) {
	if r > 0 && !math.IsInf(r, 0) {
		v.ratio = r
	}
}

// SetPitch sets the pitch ratio (1 = unchanged, 2 = octave up).
func (v *Vocoder) SetPitch(r float64) {
	if r > 0 && !math.IsInf(r, 0) {
		v.pitch = r
	}
}

// synthHop saturates at one full frame: the emit and slide loops index
// the overlap accumulators, which hold vocoderFrameSize samples.
func (v *Vocoder) synthHop() int {
	synth := int(math.Round(float64(vocoderAnalysisHop) * v.ratio))
	return min(vocoderFrameSize, max(1, synth))
}

// Put feeds input frames and runs analysis for every completed frame.
func (v *Vocoder) Put(block signal.Float64) {
	for ch := range v.chans {
		if ch >= block.NumChannels() {
			break
		}
		c := &v.chans[ch]
		c.input = append(c.input, block[ch]...)
		for len(c.input) >= vocoderFrameSize {
			v.processFrame(c)
		}
	}
}

// processFrame analyzes one windowed frame, propagates phase and emits
// synthHop normalized frames into the ready queue.
func (v *Vocoder) processFrame(c *vocoderChannel) {
	half := vocoderFrameSize / 2
	hop := float64(vocoderAnalysisHop)
	synth := v.synthHop()
	synthF := float64(synth)

	for i := 0; i < vocoderFrameSize; i++ {
		c.spectrum[i] = complex(c.input[i]*v.window[i], 0)
	}
	if err := v.plan.Forward(c.spectrum, c.spectrum); err != nil {
		panic(err)
	}

	for k := 0; k <= half; k++ {
		re := real(c.spectrum[k])
		im := imag(c.spectrum[k])
		mag := math.Hypot(re, im)
		phase := math.Atan2(im, re)

		delta := wrapPhase(phase - c.prevPhase[k] - v.omega[k]*hop)
		instFreq := v.omega[k] + delta/hop
		c.prevPhase[k] = phase

		c.sumPhase[k] += instFreq * synthF
		c.spectrum[k] = complex(mag*math.Cos(c.sumPhase[k]), mag*math.Sin(c.sumPhase[k]))
	}

	// mirror for a real-valued inverse transform
	c.spectrum[0] = complex(real(c.spectrum[0]), 0)
	c.spectrum[half] = complex(real(c.spectrum[half]), 0)
	for k := 1; k < half; k++ {
		s := c.spectrum[k]
		c.spectrum[vocoderFrameSize-k] = complex(real(s), -imag(s))
	}

	if err := v.plan.Inverse(c.timeFrame, c.spectrum); err != nil {
		panic(err)
	}

	for i := 0; i < vocoderFrameSize; i++ {
		w := v.window[i]
		c.outAcc[i] += real(c.timeFrame[i]) * w
		c.normAcc[i] += w * w
	}

	// emit the head of the accumulator, then slide it left
	for i := 0; i < synth; i++ {
		n := c.normAcc[i]
		if n < normFloor {
			n = normFloor
		}
		c.ready = append(c.ready, c.outAcc[i]/n)
	}
	copy(c.outAcc, c.outAcc[synth:])
	copy(c.normAcc, c.normAcc[synth:])
	for i := vocoderFrameSize - synth; i < vocoderFrameSize; i++ {
		c.outAcc[i] = 0
		c.normAcc[i] = 0
	}

	n := copy(c.input, c.input[vocoderAnalysisHop:])
	c.input = c.input[:n]
}

// Available returns the number of output frames receivable now.
func (v *Vocoder) Available() int {
	n := len(v.chans[0].ready)
	if n < 2 {
		return 0
	}
	last := float64(n - 2)
	if v.pitchPos > last {
		return 0
	}
	return int((last-v.pitchPos)/v.pitch) + 1
}

// Receive fills block with pitch-resampled stretched frames.
func (v *Vocoder) Receive(block signal.Float64) int {
	want := block.Size()
	produced := 0
	for produced < want {
		idx := int(v.pitchPos)
		if idx+1 >= len(v.chans[0].ready) {
			break
		}
		frac := v.pitchPos - float64(idx)
		for ch := range block {
			if ch >= len(v.chans) {
				break
			}
			src := v.chans[ch].ready
			if idx+1 >= len(src) {
				block[ch][produced] = 0
				continue
			}
			block[ch][produced] = src[idx] + frac*(src[idx+1]-src[idx])
		}
		v.pitchPos += v.pitch
		produced++
	}
	v.compact()
	return produced
}

// Flush discards all buffered input, phase state and pending output.
func (v *Vocoder) Flush() {
	for ch := range v.chans {
		c := &v.chans[ch]
		c.input = c.input[:0]
		c.ready = c.ready[:0]
		for i := range c.prevPhase {
			c.prevPhase[i] = 0
			c.sumPhase[i] = 0
		}
		for i := range c.outAcc {
			c.outAcc[i] = 0
			c.normAcc[i] = 0
		}
	}
	v.pitchPos = 0
}

// Latency returns the analysis frame size in input frames.
func (v *Vocoder) Latency() int {
	return vocoderFrameSize
}

// compact discards fully consumed ready frames.
func (v *Vocoder) compact() {
	drop := int(v.pitchPos)
	if drop <= 0 {
		return
	}
	for ch := range v.chans {
		c := &v.chans[ch]
		if drop < len(c.ready) {
			n := copy(c.ready, c.ready[drop:])
			c.ready = c.ready[:n]
		} else {
			c.ready = c.ready[:0]
		}
	}
	v.pitchPos -= float64(drop)
}

// wrapPhase wraps p into the principal interval (-pi, pi].
func wrapPhase(p float64) float64 {
	return p - 2*math.Pi*math.Round(p/(2*math.Pi))
}
