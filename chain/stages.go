package chain

import (
	"math"

	"github.com/Cignor/Collider-sub001/signal"
)

const maxChannels = 2

// filter is a one-pole lowpass. Neutral with the cutoff at the top of
// its range.
type filter struct {
	sampleRate float64
	state      [maxChannels]float64
}

func newFilter(sampleRate float64) *filter {
	return &filter{sampleRate: sampleRate}
}

func (f *filter) name() string { return "filter" }

func (f *filter) neutral(v values) bool { return v.cutoffNorm >= neutralCutoff }

func (f *filter) process(buf signal.Float64, v values) {
	a := 1 - math.Exp(-2*math.Pi*v.cutoff/f.sampleRate)
	for ch := range buf {
		if ch >= maxChannels {
			return
		}
		y := f.state[ch]
		for i, x := range buf[ch] {
			y += a * (x - y)
			buf[ch][i] = y
		}
		f.state[ch] = y
	}
}

// chorus is a short LFO-modulated delay blended with the dry signal.
type chorus struct {
	sampleRate float64
	lines      [maxChannels][]float64
	write      int
	phase      float64
}

func newChorus(sampleRate float64) *chorus {
	c := &chorus{sampleRate: sampleRate}
	size := int(sampleRate * 0.05)
	for ch := range c.lines {
		c.lines[ch] = make([]float64, size)
	}
	return c
}

func (c *chorus) name() string { return "chorus" }

func (c *chorus) neutral(v values) bool { return v.chorusMix <= neutralMix }

func (c *chorus) process(buf signal.Float64, v values) {
	size := len(c.lines[0])
	base := c.sampleRate * 0.02
	depth := v.chorusDep * c.sampleRate * 0.01
	step := 2 * math.Pi * v.chorusRate / c.sampleRate
	write := c.write
	phase := c.phase
	for i := 0; i < buf.Size(); i++ {
		offset := base + depth*math.Sin(phase)
		for ch := range buf {
			if ch >= maxChannels {
				break
			}
			x := buf[ch][i]
			c.lines[ch][write] = x
			wet := readLine(c.lines[ch], write, offset)
			buf[ch][i] = x*(1-v.chorusMix) + wet*v.chorusMix
		}
		write = (write + 1) % size
		phase += step
	}
	c.write = write
	c.phase = math.Mod(phase, 2*math.Pi)
}

// readLine reads a fractional delay behind the write cursor with linear
// interpolation.
func readLine(line []float64, write int, offset float64) float64 {
	size := len(line)
	idx := int(offset)
	frac := offset - float64(idx)
	if idx >= size-1 {
		idx = size - 2
		frac = 0
	}
	p0 := (write - idx + size*2) % size
	p1 := (p0 - 1 + size) % size
	return line[p0] + frac*(line[p1]-line[p0])
}

// phaser is a cascade of four modulated first-order allpass sections.
type phaser struct {
	sampleRate float64
	z          [maxChannels][4]float64
	phase      float64
}

func newPhaser(sampleRate float64) *phaser {
	return &phaser{sampleRate: sampleRate}
}

func (p *phaser) name() string { return "phaser" }

func (p *phaser) neutral(v values) bool { return v.phaserMix <= neutralMix }

func (p *phaser) process(buf signal.Float64, v values) {
	step := 2 * math.Pi * v.phaserRate / p.sampleRate
	phase := p.phase
	for i := 0; i < buf.Size(); i++ {
		// sweep the allpass corner between 200 Hz and 2 kHz
		fc := 200 + 900*(1+math.Sin(phase))
		t := math.Tan(math.Pi * fc / p.sampleRate)
		a := (t - 1) / (t + 1)
		for ch := range buf {
			if ch >= maxChannels {
				break
			}
			x := buf[ch][i]
			y := x
			for s := 0; s < 4; s++ {
				out := a*y + p.z[ch][s]
				p.z[ch][s] = y - a*out
				y = out
			}
			buf[ch][i] = x*(1-v.phaserMix) + y*v.phaserMix
		}
		phase += step
	}
	p.phase = math.Mod(phase, 2*math.Pi)
}

// delay is a feedback delay line.
type delay struct {
	sampleRate float64
	lines      [maxChannels][]float64
	write      int
}

func newDelay(sampleRate float64) *delay {
	d := &delay{sampleRate: sampleRate}
	size := int(sampleRate) + 1
	for ch := range d.lines {
		d.lines[ch] = make([]float64, size)
	}
	return d
}

func (d *delay) name() string { return "delay" }

func (d *delay) neutral(v values) bool { return v.delayMix <= neutralMix }

func (d *delay) process(buf signal.Float64, v values) {
	size := len(d.lines[0])
	offset := int(v.delayTime * d.sampleRate)
	if offset >= size {
		offset = size - 1
	}
	write := d.write
	for i := 0; i < buf.Size(); i++ {
		for ch := range buf {
			if ch >= maxChannels {
				break
			}
			read := (write - offset + size) % size
			wet := d.lines[ch][read]
			d.lines[ch][write] = buf[ch][i] + wet*v.delayFeed
			buf[ch][i] = buf[ch][i]*(1-v.delayMix) + wet*v.delayMix
		}
		write = (write + 1) % size
	}
	d.write = write
}

// reverb is a compact Schroeder network: two combs and one allpass per
// channel.
type reverb struct {
	sampleRate float64
	combs      [maxChannels][2][]float64
	combPos    [maxChannels][2]int
	allpass    [maxChannels][]float64
	allPos     [maxChannels]int
}

func newReverb(sampleRate float64) *reverb {
	r := &reverb{sampleRate: sampleRate}
	scale := sampleRate / 44100
	combLens := [2]int{int(1116 * scale), int(1277 * scale)}
	for ch := 0; ch < maxChannels; ch++ {
		for c, n := range combLens {
			r.combs[ch][c] = make([]float64, n+ch*23+1)
		}
		r.allpass[ch] = make([]float64, int(556*scale)+1)
	}
	return r
}

func (r *reverb) name() string { return "reverb" }

func (r *reverb) neutral(v values) bool { return v.reverbMix <= neutralMix }

func (r *reverb) process(buf signal.Float64, v values) {
	feedback := 0.7 + 0.28*v.reverbSize
	const damp = 0.2
	const allpassFeed = 0.5
	for ch := range buf {
		if ch >= maxChannels {
			return
		}
		for i, x := range buf[ch] {
			wet := 0.0
			for c := range r.combs[ch] {
				line := r.combs[ch][c]
				pos := r.combPos[ch][c]
				out := line[pos]
				line[pos] = x + out*feedback*(1-damp)
				r.combPos[ch][c] = (pos + 1) % len(line)
				wet += out
			}
			wet *= 0.5
			line := r.allpass[ch]
			pos := r.allPos[ch]
			delayed := line[pos]
			line[pos] = wet + delayed*allpassFeed
			wet = delayed - wet*allpassFeed
			r.allPos[ch] = (pos + 1) % len(line)
			buf[ch][i] = x*(1-v.reverbMix) + wet*v.reverbMix
		}
	}
}

// drive blends a normalized tanh saturator with the dry signal, so that
// drive 0 is mathematically identity.
type drive struct{}

func (d *drive) name() string { return "drive" }

func (d *drive) neutral(v values) bool { return v.drive <= neutralDrive }

func (d *drive) process(buf signal.Float64, v values) {
	k := 1 + 9*v.drive
	norm := math.Tanh(k)
	for ch := range buf {
		for i, x := range buf[ch] {
			buf[ch][i] = x*(1-v.drive) + v.drive*math.Tanh(k*x)/norm
		}
	}
}

// envelope is a peak follower shared by the dynamics stages.
type envelope struct {
	attack  float64
	release float64
	level   float64
}

func newEnvelope(sampleRate, attackMs, releaseMs float64) envelope {
	return envelope{
		attack:  1 - math.Exp(-1/(sampleRate*attackMs*0.001)),
		release: 1 - math.Exp(-1/(sampleRate*releaseMs*0.001)),
	}
}

func (e *envelope) next(x float64) float64 {
	a := math.Abs(x)
	if a > e.level {
		e.level += e.attack * (a - e.level)
	} else {
		e.level += e.release * (a - e.level)
	}
	return e.level
}

// compressor applies downward compression above its threshold.
type compressor struct {
	env [maxChannels]envelope
}

func newCompressor(sampleRate float64) *compressor {
	c := &compressor{}
	for ch := range c.env {
		c.env[ch] = newEnvelope(sampleRate, 5, 50)
	}
	return c
}

func (c *compressor) name() string { return "compressor" }

func (c *compressor) neutral(v values) bool { return v.compRatio <= neutralRatio }

func (c *compressor) process(buf signal.Float64, v values) {
	for ch := range buf {
		if ch >= maxChannels {
			return
		}
		for i, x := range buf[ch] {
			env := c.env[ch].next(x)
			gain := 1.0
			if env > v.compThreshold && env > 0 {
				gain = (v.compThreshold + (env-v.compThreshold)/v.compRatio) / env
			}
			buf[ch][i] = x * gain
		}
	}
}

// limiter keeps the envelope under its ceiling.
type limiter struct {
	env [maxChannels]envelope
}

func newLimiter(sampleRate float64) *limiter {
	l := &limiter{}
	for ch := range l.env {
		l.env[ch] = newEnvelope(sampleRate, 0.5, 100)
	}
	return l
}

func (l *limiter) name() string { return "limiter" }

func (l *limiter) neutral(v values) bool { return v.limitCeiling >= neutralCeiling }

func (l *limiter) process(buf signal.Float64, v values) {
	for ch := range buf {
		if ch >= maxChannels {
			return
		}
		for i, x := range buf[ch] {
			env := l.env[ch].next(x)
			if env > v.limitCeiling && env > 0 {
				buf[ch][i] = x * v.limitCeiling / env
			}
		}
	}
}

// gate attenuates the signal while the envelope sits under the
// threshold.
type gate struct {
	env  [maxChannels]envelope
	gain [maxChannels]float64
}

func newGate(sampleRate float64) *gate {
	g := &gate{}
	for ch := range g.env {
		g.env[ch] = newEnvelope(sampleRate, 1, 20)
		g.gain[ch] = 1
	}
	return g
}

func (g *gate) name() string { return "gate" }

func (g *gate) neutral(v values) bool { return v.gateThreshold <= neutralThreshold }

func (g *gate) process(buf signal.Float64, v values) {
	const slew = 0.005
	for ch := range buf {
		if ch >= maxChannels {
			return
		}
		for i, x := range buf[ch] {
			target := 1.0
			if g.env[ch].next(x) < v.gateThreshold {
				target = 0
			}
			g.gain[ch] += slew * (target - g.gain[ch])
			buf[ch][i] = x * g.gain[ch]
		}
	}
}

// gainPan applies uniform gain followed by equal-power panning. It is
// always the last stage and has no neutral point.
type gainPan struct{}

func (g *gainPan) name() string { return "gainpan" }

func (g *gainPan) neutral(values) bool { return false }

func (g *gainPan) process(buf signal.Float64, v values) {
	panL := math.Cos((v.pan + 1) * math.Pi / 4)
	panR := math.Sin((v.pan + 1) * math.Pi / 4)
	for ch := range buf {
		if ch >= maxChannels {
			return
		}
		mul := v.gain * panL
		if ch == 1 {
			mul = v.gain * panR
		}
		for i := range buf[ch] {
			buf[ch][i] *= mul
		}
	}
}
