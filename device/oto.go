package device

import (
	"errors"

	"github.com/ebitengine/oto/v3"

	"github.com/Cignor/Collider-sub001/signal"
)

// Oto plays through the ebitengine oto context. Oto pulls signed
// 16-bit little-endian samples through an io.Reader; blockReader
// renders on demand.
type Oto struct {
	ctx       *oto.Context
	player    *oto.Player
	blockSize int
}

// NewOto creates an uninitialized oto output.
func NewOto() *Oto {
	return &Oto{}
}

// Prepare creates the oto context for the format and waits until the
// hardware is ready.
func (d *Oto) Prepare(sampleRate float64, blockSize int) error {
	op := &oto.NewContextOptions{
		SampleRate:   int(sampleRate),
		ChannelCount: numChannels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return err
	}
	<-ready
	d.ctx = ctx
	d.blockSize = blockSize
	return nil
}

// Start begins playback pulling from render.
func (d *Oto) Start(render RenderFunc) error {
	if d.ctx == nil {
		return errors.New("device not prepared")
	}
	d.player = d.ctx.NewPlayer(newBlockReader(render, d.blockSize))
	d.player.Play()
	return nil
}

// Release stops playback.
func (d *Oto) Release() error {
	if d.player == nil {
		return nil
	}
	err := d.player.Close()
	d.player = nil
	return err
}

// blockReader adapts a RenderFunc to the byte stream oto consumes.
type blockReader struct {
	render  RenderFunc
	block   signal.Float64
	pending []byte
}

func newBlockReader(render RenderFunc, blockSize int) *blockReader {
	return &blockReader{
		render: render,
		block:  signal.EmptyFloat64(numChannels, blockSize),
	}
}

func (r *blockReader) Read(p []byte) (int, error) {
	for len(r.pending) < len(p) {
		if err := r.render(r.block); err != nil {
			if len(r.pending) > 0 {
				break
			}
			return 0, err
		}
		ints := r.block.AsInterInt(signal.BitDepth16)
		for _, s := range ints {
			r.pending = append(r.pending, byte(uint16(s)), byte(uint16(s)>>8))
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
