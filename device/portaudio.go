package device

import (
	"github.com/gordonklaus/portaudio"

	"github.com/Cignor/Collider-sub001/signal"
)

const numChannels = 2

// PortAudio plays through the default portaudio device with blocking
// writes.
type PortAudio struct {
	buf        []float32
	block      signal.Float64
	stream     *portaudio.Stream
	sampleRate float64
	blockSize  int

	stop chan struct{}
	done chan struct{}
}

// NewPortAudio creates an uninitialized portaudio output.
func NewPortAudio() *PortAudio {
	return &PortAudio{}
}

// Prepare initializes portaudio and opens the default stream.
func (d *PortAudio) Prepare(sampleRate float64, blockSize int) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	d.sampleRate = sampleRate
	d.blockSize = blockSize
	d.buf = make([]float32, blockSize*numChannels)
	d.block = signal.EmptyFloat64(numChannels, blockSize)

	stream, err := portaudio.OpenDefaultStream(0, numChannels, sampleRate, blockSize, &d.buf)
	if err != nil {
		return err
	}
	d.stream = stream
	return nil
}

// Start begins the blocking write loop on its own goroutine.
func (d *PortAudio) Start(render RenderFunc) error {
	if err := d.stream.Start(); err != nil {
		return err
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		for {
			select {
			case <-d.stop:
				return
			default:
			}
			if err := render(d.block); err != nil {
				return
			}
			for i := 0; i < d.blockSize; i++ {
				for ch := 0; ch < numChannels; ch++ {
					d.buf[i*numChannels+ch] = float32(d.block[ch][i])
				}
			}
			if err := d.stream.Write(); err != nil {
				return
			}
		}
	}()
	return nil
}

// Release stops the loop and terminates portaudio.
func (d *PortAudio) Release() error {
	if d.stop != nil {
		close(d.stop)
		<-d.done
		d.stop = nil
	}
	if d.stream != nil {
		if err := d.stream.Stop(); err != nil {
			return err
		}
		if err := d.stream.Close(); err != nil {
			return err
		}
		d.stream = nil
	}
	return portaudio.Terminate()
}
