package device

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cignor/Collider-sub001/signal"
)

func TestBlockReaderInterleaves(t *testing.T) {
	render := func(out signal.Float64) error {
		for i := 0; i < out.Size(); i++ {
			out[0][i] = 1
			out[1][i] = -1
		}
		return nil
	}
	r := newBlockReader(render, 4)

	// one frame is 2 channels of 2 bytes
	p := make([]byte, 4)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	left := int16(uint16(p[0]) | uint16(p[1])<<8)
	right := int16(uint16(p[2]) | uint16(p[3])<<8)
	assert.Greater(t, left, int16(32700))
	assert.Less(t, right, int16(-32700))
}

func TestBlockReaderDrainsPendingBeforeError(t *testing.T) {
	calls := 0
	render := func(out signal.Float64) error {
		calls++
		if calls > 1 {
			return io.EOF
		}
		return nil
	}
	r := newBlockReader(render, 2)

	// first read renders one block of 8 bytes, asks for 6
	p := make([]byte, 6)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	// the 2 pending bytes are served even though render now fails
	n, err = r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = r.Read(p)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDeviceInterfaceCompliance(t *testing.T) {
	var _ Device = NewPortAudio()
	var _ Device = NewOto()
	var _ Device = NewWavFile("")
	assert.Error(t, NewOto().Start(func(signal.Float64) error { return errors.New("nope") }))
}

func TestWavFileWritesRenderedBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bounce.wav")
	d := NewWavFile(path)
	require.NoError(t, d.Prepare(44100, 64))

	blocks := 0
	finished := make(chan struct{})
	err := d.Start(func(out signal.Float64) error {
		if blocks >= 10 {
			close(finished)
			return io.EOF
		}
		blocks++
		for i := 0; i < out.Size(); i++ {
			out[0][i] = 0.5
			out[1][i] = -0.5
		}
		return nil
	})
	require.NoError(t, err)
	<-finished
	require.NoError(t, d.Release())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Equal(t, 10*64*2, len(buf.Data))
	assert.InDelta(t, 0.5, float64(buf.Data[0])/(1<<15), 1e-3)
	assert.InDelta(t, -0.5, float64(buf.Data[1])/(1<<15), 1e-3)
}
