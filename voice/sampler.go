package voice

import (
	"fmt"

	"github.com/Cignor/Collider-sub001/param"
	"github.com/Cignor/Collider-sub001/signal"
	"github.com/Cignor/Collider-sub001/stretch"
)

// Sampler plays a decoded resource through the elastic stretch buffer.
// Playback loops; speed and pitch are decoupled by the active stretch
// engine, position seeks within the resource.
type Sampler struct {
	base
	frames signal.Float64
	srcPos int
	buf    *stretch.Buffer
	mode   stretch.Mode
	fill   int

	lastPosition float64
}

// NewSampler creates a sampler voice over the decoded resource frames.
func NewSampler(id uint64, frames signal.Float64) *Sampler {
	return &Sampler{
		base: newBase(id, "sampler",
			param.Spec{Name: "speed", Min: 0.25, Max: 4, Def: 1},
			param.Spec{Name: "pitch", Min: 0.25, Max: 4, Def: 1},
			param.Spec{Name: "position", Min: 0, Max: 1, Def: 0},
		),
		frames: frames,
		mode:   stretch.ModeResampler,
	}
}

// Prepare allocates the elastic buffer for the format. The ring holds
// one second of audio.
func (s *Sampler) Prepare(sampleRate float64, blockSize int) {
	capacity := int(sampleRate)
	s.buf = stretch.NewBuffer(capacity, sampleRate, stretch.WithMode(s.mode))
	// midpoint of the stable zone of the fill-ratio state machine
	s.fill = capacity / 2
	s.fx.Prepare(sampleRate, blockSize)
	s.srcPos = int(s.lastPosition * float64(s.frames.Size()))
	s.topUp()
}

// Render reads one block from the elastic buffer through the effect
// chain, then refills the ring for the next block. A seek flushes the
// buffer, so the block after a seek starts at the new position.
func (s *Sampler) Render(out signal.Float64) {
	if s.buf == nil || s.frames.Size() == 0 {
		out.Clear()
		return
	}
	s.buf.SetSpeed(s.store.Get("speed"))
	s.buf.SetPitch(s.store.Get("pitch"))
	if pos := s.store.Get("position"); pos != s.lastPosition {
		s.lastPosition = pos
		s.srcPos = int(pos * float64(s.frames.Size()))
		s.buf.Flush()
	}
	s.buf.Read(out)
	s.topUp()
	s.fx.Process(out)
}

// topUp refills the ring to half capacity, looping over the resource.
// Half fill keeps the state machine in its stable zone: no starvation,
// no auto-drop churn.
func (s *Sampler) topUp() {
	size := s.frames.Size()
	if size == 0 {
		return
	}
	for s.buf.Ready() < s.fill {
		if s.srcPos >= size {
			s.srcPos = 0
		}
		chunk := min(size-s.srcPos, s.fill-s.buf.Ready())
		n := s.buf.Write(s.frames.Region(s.srcPos, chunk))
		if n == 0 {
			return
		}
		s.srcPos += n
	}
}

// SetEngineMode switches the stretch engine. The switch lands on the
// next rendered block, fully resetting playback state.
func (s *Sampler) SetEngineMode(m stretch.Mode) error {
	switch m {
	case stretch.ModeResampler, stretch.ModeVocoder:
	default:
		return fmt.Errorf("unknown stretch mode %q", m)
	}
	s.mode = m
	if s.buf != nil {
		s.buf.SetMode(m)
	}
	return nil
}

// FlushStretch requests a buffer clear on the next rendered block.
func (s *Sampler) FlushStretch() {
	if s.buf != nil {
		s.buf.Flush()
	}
}
