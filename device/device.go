// Package device binds the engine render callback to a host audio
// output. The contract is prepare, start, release: every live voice
// must be re-prepared when the format changes.
package device

import "github.com/Cignor/Collider-sub001/signal"

// RenderFunc fills one stereo block. It is invoked on the device's
// audio thread and must never block.
type RenderFunc func(out signal.Float64) error

// Device is a host audio output.
type Device interface {
	// Prepare opens the device for the format.
	Prepare(sampleRate float64, blockSize int) error
	// Start begins pulling blocks from render.
	Start(render RenderFunc) error
	// Release stops playback and closes the device.
	Release() error
}
