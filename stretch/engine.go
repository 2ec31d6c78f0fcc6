// Package stretch implements the elastic time/pitch pipeline: a ring
// buffer with back-pressure and auto-drop in front of one of two
// interchangeable stretch engines.
package stretch

import "github.com/Cignor/Collider-sub001/signal"

// Mode selects the active stretch engine.
type Mode string

const (
	// ModeVocoder is the phase-vocoder engine: higher quality, higher
	// latency.
	ModeVocoder Mode = "vocoder"
	// ModeResampler is the linear-interpolation resampling FIFO: no
	// added dependency, deterministic latency.
	ModeResampler Mode = "resampler"
)

// Engine transforms buffered input frames into output frames at a
// configurable rate.
//
// Ratio conventions are inverted between the two implementations and
// this asymmetry is deliberate contract, carried over from the source
// behavior of the two engines:
//
//	Resampler: SetRatio(r) means r input frames consumed per output
//	frame (r = playback speed, the direct multiplier).
//	Vocoder: SetRatio(r) means the output duration is r times the
//	input duration (r = 1/speed, the reciprocal).
//
// Callers that switch engines must convert accordingly; see
// Buffer.applyTargets. Getting the direction wrong produces audio at
// the square of the intended speed, so both engines are tested in
// parallel against the same net consumption.
type Engine interface {
	// SetRatio sets the engine rate. See the convention note above.
	SetRatio(r float64)
	// SetPitch sets the pitch ratio (1 = unchanged, 2 = octave up).
	SetPitch(r float64)
	// Put feeds input frames into the engine.
	Put(block signal.Float64)
	// Receive fills block with processed frames and returns how many
	// frames were produced. It never blocks.
	Receive(block signal.Float64) int
	// Available returns the number of output frames receivable now.
	Available() int
	// Flush discards all internal state.
	Flush()
	// Latency returns the engine latency in input frames.
	Latency() int
}
