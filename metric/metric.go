// Package metric publishes engine counters through expvar. Counters
// are grouped per engine instance so multiple engines in one process
// do not collide.
package metric

import (
	"expvar"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

const label = "collider"

const (
	// BlockCounter measures rendered blocks.
	BlockCounter = "Blocks"
	// FrameCounter measures rendered frames.
	FrameCounter = "Frames"
	// LatencyCounter measures latency between render calls.
	LatencyCounter = "Latency"
	// DurationCounter counts rendered signal duration.
	DurationCounter = "Duration"
	// PeakCounter holds the last block peak.
	PeakCounter = "Peak"
	// CommandCounter measures drained commands.
	CommandCounter = "Commands"
	// CreateCounter measures created voices.
	CreateCounter = "Creates"
	// DestroyCounter measures destroyed voices.
	DestroyCounter = "Destroys"
	// RejectCounter measures rejected commands.
	RejectCounter = "Rejects"
)

// MeasureFunc captures render metrics when a block is processed.
type MeasureFunc func(frames int64)

// Render holds the audio-callback side counters of one engine. All
// values are atomics; the render path never locks.
type Render struct {
	blocks  *expvar.Int
	frames  *expvar.Int
	latency *duration
	total   *duration
	peak    *peak
}

// NewRender publishes render counters under the given instance id.
func NewRender(id string) *Render {
	r := &Render{
		blocks:  expvar.NewInt(key(id, "render", BlockCounter)),
		frames:  expvar.NewInt(key(id, "render", FrameCounter)),
		latency: &duration{},
		total:   &duration{},
		peak:    &peak{},
	}
	expvar.Publish(key(id, "render", LatencyCounter), r.latency)
	expvar.Publish(key(id, "render", DurationCounter), r.total)
	expvar.Publish(key(id, "render", PeakCounter), r.peak)
	return r
}

// Meter returns a closure capturing per-block counters. The closure is
// created when rendering starts so the first latency sample is not
// skewed by setup time.
func (r *Render) Meter(sampleRate int) MeasureFunc {
	calledAt := time.Now()
	var (
		blockFrames   int64
		blockDuration time.Duration
	)
	return func(frames int64) {
		r.latency.set(time.Since(calledAt))
		r.blocks.Add(1)
		r.frames.Add(frames)
		if blockFrames != frames {
			blockFrames = frames
			blockDuration = time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
		}
		r.total.add(blockDuration)
		calledAt = time.Now()
	}
}

// SetPeak stores the block peak. Lock-free, called from the render
// path.
func (r *Render) SetPeak(v float64) {
	r.peak.set(v)
}

// Peak returns the last stored block peak.
func (r *Render) Peak() float64 {
	return r.peak.value()
}

// Dispatch holds the dispatch-loop side counters of one engine.
type Dispatch struct {
	Commands *expvar.Int
	Creates  *expvar.Int
	Destroys *expvar.Int
	Rejects  *expvar.Int
}

// NewDispatch publishes dispatch counters under the given instance id.
func NewDispatch(id string) *Dispatch {
	return &Dispatch{
		Commands: expvar.NewInt(key(id, "dispatch", CommandCounter)),
		Creates:  expvar.NewInt(key(id, "dispatch", CreateCounter)),
		Destroys: expvar.NewInt(key(id, "dispatch", DestroyCounter)),
		Rejects:  expvar.NewInt(key(id, "dispatch", RejectCounter)),
	}
}

// Get returns the published value for an instance counter group.
func Get(id, group, counter string) string {
	v := expvar.Get(key(id, group, counter))
	if v == nil {
		return ""
	}
	return v.String()
}

func key(id, group, counter string) string {
	return fmt.Sprintf("%s.%s.%s.%s", label, id, group, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%v", time.Duration(atomic.LoadInt64(&v.d)))
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}

// peak is a float64 expvar stored as bits.
type peak struct {
	bits uint64
}

func (p *peak) String() string {
	return fmt.Sprintf("%.6f", p.value())
}

func (p *peak) set(v float64) {
	atomic.StoreUint64(&p.bits, math.Float64bits(v))
}

func (p *peak) value() float64 {
	return math.Float64frombits(atomic.LoadUint64(&p.bits))
}
