package device

import (
	"errors"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Cignor/Collider-sub001/signal"
)

const wavFormat = 1

// WavFile renders into a wav file instead of a sound card. Useful for
// bouncing a session offline or running the engine on a headless box.
type WavFile struct {
	path      string
	bitDepth  signal.BitDepth
	blockSize int

	file    *os.File
	encoder *wav.Encoder

	stop chan struct{}
	done chan struct{}
}

// NewWavFile creates a 16-bit wav output writing to path.
func NewWavFile(path string) *WavFile {
	return &WavFile{path: path, bitDepth: signal.BitDepth16}
}

// Prepare creates the file and the encoder for the format.
func (d *WavFile) Prepare(sampleRate float64, blockSize int) error {
	f, err := os.Create(d.path)
	if err != nil {
		return err
	}
	d.file = f
	d.encoder = wav.NewEncoder(f, int(sampleRate), int(d.bitDepth), numChannels, wavFormat)
	d.blockSize = blockSize
	return nil
}

// Start renders blocks into the encoder until Release is called or
// render returns an error.
func (d *WavFile) Start(render RenderFunc) error {
	if d.encoder == nil {
		return errors.New("device not prepared")
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	block := signal.EmptyFloat64(numChannels, d.blockSize)
	ib := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  d.encoder.SampleRate,
		},
		SourceBitDepth: int(d.bitDepth),
	}
	go func() {
		defer close(d.done)
		for {
			select {
			case <-d.stop:
				return
			default:
			}
			if err := render(block); err != nil {
				return
			}
			ib.Data = block.AsInterInt(d.bitDepth)
			if err := d.encoder.Write(ib); err != nil {
				return
			}
		}
	}()
	return nil
}

// Release stops rendering and finalizes the wav header.
func (d *WavFile) Release() error {
	if d.stop != nil {
		close(d.stop)
		<-d.done
		d.stop = nil
	}
	var err error
	if d.encoder != nil {
		err = d.encoder.Close()
		d.encoder = nil
	}
	if d.file != nil {
		if cerr := d.file.Close(); err == nil {
			err = cerr
		}
		d.file = nil
	}
	return err
}
