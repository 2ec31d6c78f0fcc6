// Package chain implements the per-voice effect chain. Stages run in a
// fixed order: filter, chorus, phaser, delay, reverb, drive,
// compressor, limiter, gate, gain/pan. Every stage reads its parameters
// once per block and is skipped while it sits at its neutral point.
package chain

import (
	"github.com/Cignor/Collider-sub001/param"
	"github.com/Cignor/Collider-sub001/signal"
)

// Neutral-point thresholds. Skipping a neutral stage is a performance
// optimization, but the thresholds themselves are contract surface.
const (
	neutralCutoff    = 0.999 // normalized cutoff at or above is bypass
	neutralMix       = 1e-3  // mix at or below is bypass
	neutralDrive     = 1e-3
	neutralRatio     = 1 + 1e-3 // compressor ratio at or below is bypass
	neutralCeiling   = 0.999    // limiter ceiling at or above is bypass
	neutralThreshold = 1e-4     // gate threshold at or below is bypass
)

// Specs returns the parameters the chain reads from a voice store.
func Specs() []param.Spec {
	return []param.Spec{
		{Name: "cutoff", Min: 20, Max: 20000, Def: 20000},
		{Name: "chorus_mix", Min: 0, Max: 1, Def: 0},
		{Name: "chorus_rate", Min: 0.1, Max: 5, Def: 0.8},
		{Name: "chorus_depth", Min: 0, Max: 1, Def: 0.3},
		{Name: "phaser_mix", Min: 0, Max: 1, Def: 0},
		{Name: "phaser_rate", Min: 0.05, Max: 2, Def: 0.4},
		{Name: "delay_mix", Min: 0, Max: 1, Def: 0},
		{Name: "delay_time", Min: 0.01, Max: 1, Def: 0.25},
		{Name: "delay_feedback", Min: 0, Max: 0.95, Def: 0.4},
		{Name: "reverb_mix", Min: 0, Max: 1, Def: 0},
		{Name: "reverb_size", Min: 0, Max: 1, Def: 0.5},
		{Name: "drive", Min: 0, Max: 1, Def: 0},
		{Name: "comp_threshold", Min: 0, Max: 1, Def: 1},
		{Name: "comp_ratio", Min: 1, Max: 20, Def: 1},
		{Name: "limit_ceiling", Min: 0, Max: 1, Def: 1},
		{Name: "gate_threshold", Min: 0, Max: 1, Def: 0},
		{Name: "gain", Min: 0, Max: 2, Def: 1},
		{Name: "pan", Min: -1, Max: 1, Def: 0},
	}
}

// values is the per-block snapshot of all chain parameters.
type values struct {
	cutoff, cutoffNorm               float64
	chorusMix, chorusRate, chorusDep float64
	phaserMix, phaserRate            float64
	delayMix, delayTime, delayFeed   float64
	reverbMix, reverbSize            float64
	drive                            float64
	compThreshold, compRatio         float64
	limitCeiling                     float64
	gateThreshold                    float64
	gain, pan                        float64
}

// stage is a single DSP unit of the chain.
type stage interface {
	name() string
	neutral(v values) bool
	process(buf signal.Float64, v values)
}

// Chain owns the stage sequence and per-stage state for one voice.
type Chain struct {
	store      *param.Store
	sampleRate float64
	stages     []stage
	gainpan    *gainPan
	scratch    signal.Float64
}

// New creates a chain reading parameters from store. Prepare must be
// called before Process.
func New(store *param.Store) *Chain {
	return &Chain{store: store}
}

// Prepare allocates stage state for the provided format. It resets all
// internal state.
func (c *Chain) Prepare(sampleRate float64, blockSize int) {
	c.sampleRate = sampleRate
	c.stages = []stage{
		newFilter(sampleRate),
		newChorus(sampleRate),
		newPhaser(sampleRate),
		newDelay(sampleRate),
		newReverb(sampleRate),
		&drive{},
		newCompressor(sampleRate),
		newLimiter(sampleRate),
		newGate(sampleRate),
	}
	c.gainpan = &gainPan{}
	c.scratch = signal.EmptyFloat64(2, blockSize)
}

// Process runs the chain over the block in place. A stage fault
// degrades that stage to pass-through for the block; it never crosses
// the block boundary.
func (c *Chain) Process(buf signal.Float64) {
	if c.gainpan == nil {
		return
	}
	v := c.snapshot()
	for _, s := range c.stages {
		if s.neutral(v) {
			continue
		}
		c.runStage(s, buf, v)
	}
	// gain/pan is applied last and has no neutral point
	c.runStage(c.gainpan, buf, v)
}

// runStage executes a stage with its input snapshotted. A panicking
// stage is degraded to pass-through: the block is restored and the
// chain moves on.
func (c *Chain) runStage(s stage, buf signal.Float64, v values) {
	c.scratch.Copy(buf)
	defer func() {
		if r := recover(); r != nil {
			buf.Copy(c.scratch.Region(0, buf.Size()))
		}
	}()
	s.process(buf, v)
}

func (c *Chain) snapshot() values {
	get := c.store.Get
	return values{
		cutoff:        get("cutoff"),
		cutoffNorm:    c.store.GetNormalized("cutoff"),
		chorusMix:     get("chorus_mix"),
		chorusRate:    get("chorus_rate"),
		chorusDep:     get("chorus_depth"),
		phaserMix:     get("phaser_mix"),
		phaserRate:    get("phaser_rate"),
		delayMix:      get("delay_mix"),
		delayTime:     get("delay_time"),
		delayFeed:     get("delay_feedback"),
		reverbMix:     get("reverb_mix"),
		reverbSize:    get("reverb_size"),
		drive:         get("drive"),
		compThreshold: get("comp_threshold"),
		compRatio:     get("comp_ratio"),
		limitCeiling:  get("limit_ceiling"),
		gateThreshold: get("gate_threshold"),
		gain:          get("gain"),
		pan:           get("pan"),
	}
}
