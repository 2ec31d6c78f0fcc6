// Package signal provides an API to manipulate digital signals. It allows to:
//	- allocate and reuse non-interleaved float64 blocks
//	- mix, clear and measure blocks without allocation
//	- convert to interleaved int for device output
package signal

import (
	"math"
	"time"
)

// Float64 is a non-interleaved float64 signal. First dimension is
// channels, second is samples.
type Float64 [][]float64

// BitDepth contains values required for float-to-int conversion.
type BitDepth int

const (
	// BitDepth8 is 8 bit depth.
	BitDepth8 = BitDepth(8)
	// BitDepth16 is 16 bit depth.
	BitDepth16 = BitDepth(16)
	// BitDepth32 is 32 bit depth.
	BitDepth32 = BitDepth(32)
)

// InterInt is an interleaved int signal.
type InterInt struct {
	Data        []int
	NumChannels int
	BitDepth
}

func (bitDepth BitDepth) scale() float64 {
	switch bitDepth {
	case BitDepth8:
		return math.MaxInt8 - 1
	case BitDepth16:
		return math.MaxInt16 - 1
	case BitDepth32:
		return math.MaxInt32 - 1
	}
	return 1
}

// EmptyFloat64 returns a zeroed buffer of specified dimensions.
func EmptyFloat64(numChannels int, bufferSize int) Float64 {
	result := make([][]float64, numChannels)
	for i := range result {
		result[i] = make([]float64, bufferSize)
	}
	return result
}

// NumChannels returns number of channels in this sample slice.
func (floats Float64) NumChannels() int {
	return len(floats)
}

// Size returns number of samples per channel in this sample slice.
func (floats Float64) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Clear zeroes all samples in place.
func (floats Float64) Clear() {
	for i := range floats {
		for j := range floats[i] {
			floats[i][j] = 0
		}
	}
}

// Peak returns the maximum absolute sample value across all channels.
func (floats Float64) Peak() float64 {
	peak := 0.0
	for i := range floats {
		for _, s := range floats[i] {
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// Add accumulates source into floats in place, scaled by gain. Channels
// and samples beyond the dimensions of floats are dropped.
func (floats Float64) Add(source Float64, gain float64) {
	for i := range floats {
		if i >= len(source) {
			return
		}
		n := len(floats[i])
		if len(source[i]) < n {
			n = len(source[i])
		}
		for j := 0; j < n; j++ {
			floats[i][j] += source[i][j] * gain
		}
	}
}

// Copy copies source into floats in place, without allocation.
func (floats Float64) Copy(source Float64) {
	for i := range floats {
		if i >= len(source) {
			return
		}
		copy(floats[i], source[i])
	}
}

// Region returns a zero-copy view of the buffer. The view shares
// underlying memory with the receiver. Out-of-range regions are clipped
// to the buffer size.
func (floats Float64) Region(start, length int) Float64 {
	size := floats.Size()
	if start < 0 || start >= size {
		return nil
	}
	end := start + length
	if end > size {
		end = size
	}
	view := make([][]float64, floats.NumChannels())
	for i := range floats {
		view[i] = floats[i][start:end]
	}
	return view
}

// Append appends source samples to the receiver. A new buffer is
// allocated if the receiver is nil.
func (floats Float64) Append(source Float64) Float64 {
	if floats == nil {
		floats = make([][]float64, source.NumChannels())
		for i := range floats {
			floats[i] = make([]float64, 0, source.Size())
		}
	}
	for i := range source {
		floats[i] = append(floats[i], source[i]...)
	}
	return floats
}

// AsInterInt converts float64 signal to interleaved int of the provided
// bit depth. Values are clipped to [-1, 1] before conversion.
func (floats Float64) AsInterInt(bitDepth BitDepth) []int {
	numChannels := floats.NumChannels()
	if numChannels == 0 {
		return nil
	}
	scale := bitDepth.scale()
	ints := make([]int, floats.Size()*numChannels)
	for j := range floats {
		for i, s := range floats[j] {
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			ints[i*numChannels+j] = int(s * scale)
		}
	}
	return ints
}

// AsFloat64 converts interleaved int signal to non-interleaved float64.
func (ints InterInt) AsFloat64() Float64 {
	if ints.Data == nil || ints.NumChannels == 0 {
		return nil
	}
	scale := ints.BitDepth.scale()
	bufSize := int(math.Ceil(float64(len(ints.Data)) / float64(ints.NumChannels)))
	floats := make([][]float64, ints.NumChannels)
	for i := range floats {
		floats[i] = make([]float64, bufSize)
		pos := 0
		for j := i; j < len(ints.Data); j += ints.NumChannels {
			floats[i][pos] = float64(ints.Data[j]) / scale
			pos++
		}
	}
	return floats
}

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}
