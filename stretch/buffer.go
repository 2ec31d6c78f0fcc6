package stretch

import (
	"math"
	"sync/atomic"

	"github.com/Cignor/Collider-sub001/param"
	"github.com/Cignor/Collider-sub001/signal"
)

// Fill-ratio thresholds of the state machine. The thresholds are
// contract surface: tests exercise the transitions, not just the
// steady states.
const (
	minFillRatio  = 0.10
	cautionRatio  = 0.25
	highFillRatio = 0.85

	// sliceFrames is the target-smoothing granularity: speed and pitch
	// targets are read once per slice and ramped inside it.
	sliceFrames = 32

	// overlapFrames is the crossfade window captured on both sides of
	// an auto-drop seam.
	overlapFrames = 256

	cooldownSeconds = 0.2
	maxDropSeconds  = 0.3

	feedChunk = 256

	smoothCoeff = 0.01
)

// State is the consumption state derived from the fill ratio.
type State int

const (
	// StateBuffering suppresses consumption entirely until the ring
	// holds at least minFillRatio of its capacity.
	StateBuffering State = iota
	// StateCaution ramps consumption linearly from 1.0 toward the
	// nominal ratio as the fill ratio approaches cautionRatio.
	StateCaution
	// StateStable consumes at the nominal requested ratio.
	StateStable
	// StateAutoDrop marks a slice in which a crossfaded drop fired.
	StateAutoDrop
)

func (s State) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateCaution:
		return "caution"
	case StateStable:
		return "stable"
	case StateAutoDrop:
		return "auto-drop"
	}
	return "unknown"
}

// Buffer is the elastic stretch buffer: a stereo ring with monotonic
// cursors in front of a swappable stretch engine. Write and Read both
// run on the render side. Speed, pitch, flush and mode requests may
// come from any goroutine; they cross through atomics and land at
// block boundaries.
type Buffer struct {
	capacity   int
	sampleRate float64

	mode   Mode
	engine Engine

	ring     [2][]float64
	writePos uint64
	readPos  uint64

	speed *param.Smoothed
	pitch *param.Smoothed

	flushFlag   atomic.Bool
	pendingMode atomic.Pointer[Mode]

	state          State
	cooldownLeft   int
	cooldownFrames int
	maxDropFrames  int
	dropFloor      int

	framesWritten  uint64
	framesConsumed uint64
	framesDropped  uint64

	feed  signal.Float64
	fadeA signal.Float64
	fadeB signal.Float64
	fade  signal.Float64
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithEngine injects a custom engine. The direct ratio convention is
// assumed; SetMode replaces the injected engine.
func WithEngine(e Engine) Option {
	return func(b *Buffer) {
		b.engine = e
		b.mode = ModeResampler
	}
}

// WithMode selects the initial engine.
func WithMode(m Mode) Option {
	return func(b *Buffer) {
		b.mode = m
		b.engine = newEngine(m)
	}
}

func newEngine(m Mode) Engine {
	if m == ModeVocoder {
		return NewVocoder()
	}
	return NewResampler()
}

// NewBuffer creates an elastic buffer with the given ring capacity in
// frames. The default engine is the resampling FIFO.
func NewBuffer(capacity int, sampleRate float64, options ...Option) *Buffer {
	if capacity < 4*overlapFrames {
		capacity = 4 * overlapFrames
	}
	b := &Buffer{
		capacity:       capacity,
		sampleRate:     sampleRate,
		mode:           ModeResampler,
		engine:         NewResampler(),
		speed:          param.NewSmoothed(1, smoothCoeff),
		pitch:          param.NewSmoothed(1, smoothCoeff),
		cooldownFrames: int(cooldownSeconds * sampleRate),
		maxDropFrames:  int(maxDropSeconds * sampleRate),
		feed:           signal.EmptyFloat64(2, feedChunk),
		fadeA:          signal.EmptyFloat64(2, overlapFrames),
		fadeB:          signal.EmptyFloat64(2, overlapFrames),
		fade:           signal.EmptyFloat64(2, overlapFrames),
	}
	b.dropFloor = int(cautionRatio * float64(capacity))
	for ch := range b.ring {
		b.ring[ch] = make([]float64, capacity)
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// SetSpeed sets the requested playback speed target. Safe from any
// goroutine.
func (b *Buffer) SetSpeed(s float64) {
	if s > 0 && !math.IsInf(s, 0) {
		b.speed.SetTarget(s)
	}
}

// SetPitch sets the pitch ratio target. Safe from any goroutine.
func (b *Buffer) SetPitch(p float64) {
	if p > 0 && !math.IsInf(p, 0) {
		b.pitch.SetTarget(p)
	}
}

// Flush requests a full clear of ring and engine state. The flag is
// checked once per Read so the clear is never torn mid-block.
func (b *Buffer) Flush() {
	b.flushFlag.Store(true)
}

// SetMode requests a stretch engine switch. Like Flush, the request is
// applied at the next Read boundary so the reader never observes a
// half-swapped engine. Switching fully resets ring and engine state;
// no stale audio survives the switch. Safe from any goroutine.
func (b *Buffer) SetMode(m Mode) {
	b.pendingMode.Store(&m)
}

// Mode returns the engine mode as of the last Read boundary.
func (b *Buffer) Mode() Mode { return b.mode }

// State returns the consumption state observed on the last Read.
func (b *Buffer) State() State { return b.state }

// Ready returns the number of unconsumed frames in the ring.
func (b *Buffer) Ready() int {
	return int(b.writePos - b.readPos)
}

// Available returns the number of output frames the engine can yield
// without further input.
func (b *Buffer) Available() int {
	return b.engine.Available()
}

// Latency returns the active engine latency in input frames.
func (b *Buffer) Latency() int {
	return b.engine.Latency()
}

// FramesWritten returns the total frames accepted by Write.
func (b *Buffer) FramesWritten() uint64 { return b.framesWritten }

// FramesConsumed returns the total frames fed from the ring into the
// engine.
func (b *Buffer) FramesConsumed() uint64 { return b.framesConsumed }

// FramesDropped returns the total frames discarded by auto-drop.
func (b *Buffer) FramesDropped() uint64 { return b.framesDropped }

// Write appends frames to the ring and returns how many were accepted.
// A mono block is duplicated to both channels.
func (b *Buffer) Write(block signal.Float64) int {
	free := b.capacity - b.Ready()
	n := min(free, block.Size())
	if n <= 0 {
		return 0
	}
	cap64 := uint64(b.capacity)
	for ch := range b.ring {
		src := block[min(ch, block.NumChannels()-1)]
		for i := 0; i < n; i++ {
			b.ring[ch][(b.writePos+uint64(i))%cap64] = src[i]
		}
	}
	b.writePos += uint64(n)
	b.framesWritten += uint64(n)
	return n
}

// Read fills block from the engine, running the fill-ratio state
// machine slice by slice. Suppressed or starved regions are zeroed.
// It returns the number of engine-produced frames.
func (b *Buffer) Read(block signal.Float64) int {
	if m := b.pendingMode.Swap(nil); m != nil && *m != b.mode {
		b.mode = *m
		b.engine = newEngine(*m)
		b.reset()
	}
	if b.flushFlag.Swap(false) {
		b.reset()
	}
	produced := 0
	size := block.Size()
	for off := 0; off < size; off += sliceFrames {
		n := min(sliceFrames, size-off)
		produced += b.readSlice(block.Region(off, n))
	}
	return produced
}

// readSlice processes one smoothing slice: derive the state from the
// fill ratio, push targets into the engine, feed it and receive.
func (b *Buffer) readSlice(region signal.Float64) int {
	n := region.Size()
	nominal := b.speed.NextN(n)
	pitch := b.pitch.NextN(n)
	r := float64(b.Ready()) / float64(b.capacity)

	b.cooldownLeft -= n

	var effective float64
	switch {
	case r < minFillRatio:
		b.state = StateBuffering
		region.Clear()
		return 0
	case r < cautionRatio:
		b.state = StateCaution
		effective = 1 + (nominal-1)*(r-minFillRatio)/(cautionRatio-minFillRatio)
	default:
		b.state = StateStable
		effective = nominal
	}
	if r > highFillRatio && b.cooldownLeft <= 0 {
		b.autoDrop()
	}

	b.applyTargets(effective, pitch)

	for b.engine.Available() < n && b.Ready() > 0 {
		chunk := min(feedChunk, b.Ready())
		b.copyOut(b.feed, b.readPos, chunk)
		b.putGuarded(b.feed.Region(0, chunk))
		b.readPos += uint64(chunk)
		b.framesConsumed += uint64(chunk)
	}

	got := b.receiveGuarded(region)
	if got < n {
		region.Region(got, n-got).Clear()
	}
	return got
}

// applyTargets pushes the effective speed and pitch into the engine,
// converting the speed to the engine's ratio convention. The resampler
// takes the speed directly; the vocoder takes the output duration
// multiplier, the reciprocal of the speed.
func (b *Buffer) applyTargets(speed, pitch float64) {
	if b.mode == ModeVocoder {
		b.engine.SetRatio(1 / speed)
	} else {
		b.engine.SetRatio(speed)
	}
	b.engine.SetPitch(pitch)
}

// autoDrop discards a bounded span of buffered frames. The overlap
// windows on both sides of the span are crossfaded with a raised
// cosine and fed through the engine so the seam stays continuous.
func (b *Buffer) autoDrop() {
	span := min(b.maxDropFrames, b.Ready()-2*overlapFrames-b.dropFloor)
	if span <= 0 {
		return
	}
	b.copyOut(b.fadeA, b.readPos, overlapFrames)
	b.copyOut(b.fadeB, b.readPos+uint64(overlapFrames+span), overlapFrames)
	for i := 0; i < overlapFrames; i++ {
		w := 0.5 * (1 + math.Cos(math.Pi*float64(i)/float64(overlapFrames)))
		for ch := range b.fade {
			b.fade[ch][i] = b.fadeA[ch][i]*w + b.fadeB[ch][i]*(1-w)
		}
	}
	b.putGuarded(b.fade)
	b.readPos += uint64(2*overlapFrames + span)
	b.framesConsumed += uint64(overlapFrames)
	b.framesDropped += uint64(span + overlapFrames)
	b.cooldownLeft = b.cooldownFrames
	b.state = StateAutoDrop
}

// putGuarded feeds the engine with fault containment: a panicking
// engine loses the chunk but keeps its state for the next block.
func (b *Buffer) putGuarded(block signal.Float64) {
	defer func() {
		_ = recover()
	}()
	b.engine.Put(block)
}

// receiveGuarded receives from the engine with fault containment: a
// panicking engine yields silence for this slice only.
func (b *Buffer) receiveGuarded(region signal.Float64) (n int) {
	defer func() {
		if r := recover(); r != nil {
			region.Clear()
			n = 0
		}
	}()
	return b.engine.Receive(region)
}

// copyOut copies n frames starting at the absolute position from into
// dst.
func (b *Buffer) copyOut(dst signal.Float64, from uint64, n int) {
	cap64 := uint64(b.capacity)
	for ch := range b.ring {
		for i := 0; i < n; i++ {
			dst[ch][i] = b.ring[ch][(from+uint64(i))%cap64]
		}
	}
}

// reset clears ring and engine state.
func (b *Buffer) reset() {
	b.readPos = b.writePos
	b.engine.Flush()
	b.speed.Snap()
	b.pitch.Snap()
	b.cooldownLeft = 0
	b.state = StateBuffering
}
