package stretch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cignor/Collider-sub001/signal"
)

func TestBufferStateTransitions(t *testing.T) {
	b := NewBuffer(10000, 44100)
	out := signal.EmptyFloat64(2, 64)

	// empty ring: consumption suppressed
	assert.Equal(t, 0, b.Read(out))
	assert.Equal(t, StateBuffering, b.State())

	// fill ratio 0.15: consumption resumes with the caution ramp
	b.Write(sineBlock(2, 1500, 220, 0.4, 44100))
	assert.Equal(t, 64, b.Read(out))
	assert.Equal(t, StateCaution, b.State())

	// fill ratio 0.6: nominal consumption
	b.Write(sineBlock(2, 5000, 220, 0.4, 44100))
	assert.Equal(t, 64, b.Read(out))
	assert.Equal(t, StateStable, b.State())
}

func TestBufferingYieldsSilence(t *testing.T) {
	b := NewBuffer(10000, 44100)
	b.Write(sineBlock(2, 500, 220, 0.4, 44100))

	out := signal.EmptyFloat64(2, 64)
	for i := range out[0] {
		out[0][i] = 1
	}
	assert.Equal(t, 0, b.Read(out))
	assert.Equal(t, StateBuffering, b.State())
	assert.InDelta(t, 0, out.Peak(), 1e-12)
}

func TestCautionConsumesLessThanStable(t *testing.T) {
	caution := NewBuffer(10000, 44100)
	stable := NewBuffer(10000, 44100)
	caution.Write(sineBlock(2, 1600, 220, 0.4, 44100))
	stable.Write(sineBlock(2, 6000, 220, 0.4, 44100))
	caution.SetSpeed(3)
	stable.SetSpeed(3)

	out := signal.EmptyFloat64(2, 2048)
	caution.Read(out)
	stable.Read(out)
	assert.Less(t, caution.FramesConsumed(), stable.FramesConsumed())
}

func TestFlushClearsRingAndEngine(t *testing.T) {
	b := NewBuffer(10000, 44100)
	b.Write(sineBlock(2, 5000, 220, 0.4, 44100))

	out := signal.EmptyFloat64(2, 64)
	require.Equal(t, 64, b.Read(out))

	b.Flush()
	assert.Equal(t, 0, b.Read(out))
	assert.Equal(t, 0, b.Ready())
	assert.Equal(t, 0, b.Available())
	assert.InDelta(t, 0, out.Peak(), 1e-12)
}

func TestSetModeResetsAllState(t *testing.T) {
	b := NewBuffer(10000, 44100)
	b.Write(sineBlock(2, 5000, 220, 0.4, 44100))

	out := signal.EmptyFloat64(2, 64)
	require.Equal(t, 64, b.Read(out))

	// the switch lands at the next Read boundary, not immediately
	b.SetMode(ModeVocoder)
	assert.Equal(t, ModeResampler, b.Mode())

	assert.Equal(t, 0, b.Read(out))
	assert.Equal(t, ModeVocoder, b.Mode())
	assert.Equal(t, 0, b.Available())
	assert.Equal(t, 0, b.Ready())
	assert.InDelta(t, 0, out.Peak(), 1e-12)

	// requesting the active mode again is a no-op, not another reset
	b.Write(sineBlock(2, 5000, 220, 0.4, 44100))
	b.SetMode(ModeVocoder)
	assert.Equal(t, 64, b.Read(out))
	assert.Greater(t, b.Ready(), 0)
}

// Mode switches race against a reader; the swap must only ever land
// between blocks.
func TestSetModeConcurrentWithReads(t *testing.T) {
	b := NewBuffer(10000, 44100)
	out := signal.EmptyFloat64(2, 64)
	modes := []Mode{ModeVocoder, ModeResampler}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			b.SetMode(modes[i%2])
		}
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		b.Write(sineBlock(2, 512, 220, 0.4, 44100))
		b.Read(out)
	}

	// one more block applies whatever request was left pending
	b.Read(out)
	assert.Equal(t, ModeResampler, b.Mode())
}

type ratioRecorder struct {
	*Resampler
	lastRatio float64
	lastPitch float64
}

func (r *ratioRecorder) SetRatio(v float64) {
	r.lastRatio = v
	r.Resampler.SetRatio(v)
}

func (r *ratioRecorder) SetPitch(v float64) {
	r.lastPitch = v
	r.Resampler.SetPitch(v)
}

func TestApplyTargetsConvertsPerEngineConvention(t *testing.T) {
	rec := &ratioRecorder{Resampler: NewResampler()}
	b := NewBuffer(10000, 44100, WithEngine(rec))

	b.applyTargets(2, 1.5)
	assert.Equal(t, 2.0, rec.lastRatio)
	assert.Equal(t, 1.5, rec.lastPitch)

	b.mode = ModeVocoder
	b.applyTargets(2, 1.5)
	assert.Equal(t, 0.5, rec.lastRatio)
}

type faultyBufferEngine struct {
	*Resampler
	fail bool
}

func (f *faultyBufferEngine) Receive(block signal.Float64) int {
	if f.fail {
		panic("engine fault")
	}
	return f.Resampler.Receive(block)
}

func TestEngineFaultYieldsSilenceForBlockOnly(t *testing.T) {
	engine := &faultyBufferEngine{Resampler: NewResampler()}
	b := NewBuffer(10000, 44100, WithEngine(engine))
	b.Write(sineBlock(2, 5000, 220, 0.4, 44100))

	out := signal.EmptyFloat64(2, 64)
	engine.fail = true
	assert.NotPanics(t, func() {
		assert.Equal(t, 0, b.Read(out))
	})
	assert.InDelta(t, 0, out.Peak(), 1e-12)

	// the engine state survived the fault: the next block plays
	engine.fail = false
	assert.Equal(t, 64, b.Read(out))
	assert.Greater(t, out.Peak(), 0.1)
}

// Sustained overfill at double speed for a simulated minute: the fill
// ratio stays bounded, consumption never starves after warmup, drops
// fire with their cooldown honored and every seam stays continuous.
func TestSustainedDoubleSpeedConvergence(t *testing.T) {
	const (
		capacity   = 44100
		sampleRate = 44100.0
		blockSize  = 512
		blocks     = 60 * 44100 / blockSize
		freq       = 220.0
		amp        = 0.4
	)
	b := NewBuffer(capacity, sampleRate)
	b.SetSpeed(2)

	phase := 0
	chunk := signal.EmptyFloat64(2, blockSize)
	writeAll := func() {
		for {
			for i := 0; i < blockSize; i++ {
				v := amp * math.Sin(2*math.Pi*freq*float64(phase+i)/sampleRate)
				chunk[0][i] = v
				chunk[1][i] = v
			}
			n := b.Write(chunk)
			phase += n
			if n < blockSize {
				return
			}
		}
	}

	out := signal.EmptyFloat64(2, blockSize)
	var rendered []float64
	var dropBlocks []int
	lastDropped := uint64(0)
	for block := 0; block < blocks; block++ {
		writeAll()
		produced := b.Read(out)
		if block >= 20 {
			require.Equal(t, blockSize, produced, "starved at block %d", block)
			rendered = append(rendered, out[0][:produced]...)
		}
		if b.FramesDropped() > lastDropped {
			dropBlocks = append(dropBlocks, block)
			lastDropped = b.FramesDropped()
		}
		if block%50 == 0 {
			require.Equal(t, b.FramesWritten(),
				b.FramesConsumed()+b.FramesDropped()+uint64(b.Ready()))
		}
		require.LessOrEqual(t, b.Ready(), capacity)
	}

	require.NotEmpty(t, dropBlocks, "no auto-drop fired in a minute of overfill")

	// cooldown: 0.2 s of output between drops, 17+ blocks of 512
	for i := 1; i < len(dropBlocks); i++ {
		assert.GreaterOrEqual(t, dropBlocks[i]-dropBlocks[i-1], 17)
	}

	// every seam, dropped or not, stays below the click threshold
	maxStep := 0.0
	for i := 1; i < len(rendered); i++ {
		maxStep = math.Max(maxStep, math.Abs(rendered[i]-rendered[i-1]))
	}
	assert.Less(t, maxStep, 0.1)
}
