package chain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Cignor/Collider-sub001/chain"
	"github.com/Cignor/Collider-sub001/param"
	"github.com/Cignor/Collider-sub001/signal"
)

const sampleRate = 44100

func newChain(t *testing.T, params map[string]float64) (*chain.Chain, *param.Store) {
	t.Helper()
	store := param.NewStore(chain.Specs()...)
	for name, v := range params {
		assert.NoError(t, store.Set(name, v))
	}
	c := chain.New(store)
	c.Prepare(sampleRate, 64)
	return c, store
}

func sineBlock(size int, freq float64) signal.Float64 {
	buf := signal.EmptyFloat64(2, size)
	for i := 0; i < size; i++ {
		s := math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
		buf[0][i] = s
		buf[1][i] = s
	}
	return buf
}

func equalBlocks(a, b signal.Float64) bool {
	for ch := range a {
		for i := range a[ch] {
			if a[ch][i] != b[ch][i] {
				return false
			}
		}
	}
	return true
}

// processed returns a copy of in after running it through a chain with
// the provided parameters and unity gain/pan removed for comparison.
func processed(t *testing.T, in signal.Float64, params map[string]float64) signal.Float64 {
	t.Helper()
	c, _ := newChain(t, params)
	buf := signal.EmptyFloat64(in.NumChannels(), in.Size())
	buf.Copy(in)
	c.Process(buf)
	return buf
}

func TestAllNeutralIsIdentity(t *testing.T) {
	in := sineBlock(256, 440)
	out := processed(t, in, nil)
	// every stage is neutral by default; only the center pan law remains
	for ch := range in {
		for i := range in[ch] {
			assert.InDelta(t, in[ch][i]*math.Sqrt2/2, out[ch][i], 1e-12)
		}
	}
}

func TestNeutralThresholds(t *testing.T) {
	in := sineBlock(256, 440)
	tests := []struct {
		name    string
		neutral map[string]float64
		active  map[string]float64
	}{
		{
			name:    "filter",
			neutral: map[string]float64{"cutoff": 20000},
			active:  map[string]float64{"cutoff": 500},
		},
		{
			name:    "chorus",
			neutral: map[string]float64{"chorus_mix": 0.0009},
			active:  map[string]float64{"chorus_mix": 0.5},
		},
		{
			name:    "phaser",
			neutral: map[string]float64{"phaser_mix": 0.0009},
			active:  map[string]float64{"phaser_mix": 0.5},
		},
		{
			name:    "delay",
			neutral: map[string]float64{"delay_mix": 0.0009},
			active:  map[string]float64{"delay_mix": 0.5, "delay_time": 0.01},
		},
		{
			name:    "reverb",
			neutral: map[string]float64{"reverb_mix": 0.0009},
			active:  map[string]float64{"reverb_mix": 0.5},
		},
		{
			name:    "drive",
			neutral: map[string]float64{"drive": 0.0009},
			active:  map[string]float64{"drive": 0.8},
		},
		{
			name:    "compressor",
			neutral: map[string]float64{"comp_ratio": 1, "comp_threshold": 0.1},
			active:  map[string]float64{"comp_ratio": 8, "comp_threshold": 0.1},
		},
		{
			name:    "limiter",
			neutral: map[string]float64{"limit_ceiling": 1},
			active:  map[string]float64{"limit_ceiling": 0.2},
		},
		{
			name:    "gate",
			neutral: map[string]float64{"gate_threshold": 0.00009},
			active:  map[string]float64{"gate_threshold": 0.9},
		},
	}
	reference := processed(t, in, nil)
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.True(t, equalBlocks(reference, processed(t, in, test.neutral)),
				"stage at neutral point must be skipped")
			assert.False(t, equalBlocks(reference, processed(t, in, test.active)),
				"stage past neutral point must alter the block")
		})
	}
}

func TestEqualPowerPanLaw(t *testing.T) {
	block := func() signal.Float64 {
		buf := signal.EmptyFloat64(2, 8)
		for i := range buf[0] {
			buf[0][i] = 1
			buf[1][i] = 1
		}
		return buf
	}

	center := processed(t, block(), map[string]float64{"pan": 0})
	assert.InDelta(t, math.Sqrt2/2, center[0][0], 1e-9)
	assert.InDelta(t, math.Sqrt2/2, center[1][0], 1e-9)

	left := processed(t, block(), map[string]float64{"pan": -1})
	assert.InDelta(t, 1, left[0][0], 1e-9)
	assert.InDelta(t, 0, left[1][0], 1e-9)

	right := processed(t, block(), map[string]float64{"pan": 1})
	assert.InDelta(t, 0, right[0][0], 1e-9)
	assert.InDelta(t, 1, right[1][0], 1e-9)
}

func TestGainBeforePan(t *testing.T) {
	in := sineBlock(128, 440)
	unity := processed(t, in, nil)
	half := processed(t, in, map[string]float64{"gain": 0.5})
	assert.InDelta(t, unity.Peak()*0.5, half.Peak(), 1e-9)
}

func TestLimiterCapsPeak(t *testing.T) {
	in := sineBlock(4096, 440)
	out := processed(t, in, map[string]float64{"limit_ceiling": 0.25})
	// the follower needs a few samples to settle; check the tail
	tail := out.Region(1024, 3072)
	assert.Less(t, tail.Peak(), 0.3)
}

func TestGateSilencesQuietSignal(t *testing.T) {
	in := signal.EmptyFloat64(2, 4096)
	for i := range in[0] {
		in[0][i] = 0.01
		in[1][i] = 0.01
	}
	out := processed(t, in, map[string]float64{"gate_threshold": 0.5})
	tail := out.Region(2048, 2048)
	assert.Less(t, tail.Peak(), 0.005)
}

func TestProcessBeforePrepareIsNoop(t *testing.T) {
	store := param.NewStore(chain.Specs()...)
	c := chain.New(store)
	buf := sineBlock(64, 440)
	assert.NotPanics(t, func() { c.Process(buf) })
}
