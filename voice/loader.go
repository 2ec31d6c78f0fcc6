package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"

	"github.com/Cignor/Collider-sub001/signal"
)

// ErrUnknownType is returned when a type tag has no registered kind.
// A create carrying an unknown type is rejected with no graph change.
var ErrUnknownType = errors.New("unknown voice type")

// Loader resolves a type tag and resource name into an initialized
// voice.
type Loader interface {
	Load(id uint64, typeTag, resource string) (Voice, error)
}

// FileLoader loads sampler resources from a directory. Decoded frames
// are cached per resource name. A resource that cannot be opened or
// decoded is substituted with a deterministic synthesized fallback;
// only an unknown type tag fails a load.
type FileLoader struct {
	root   string
	logger *logrus.Logger
	cache  map[string]signal.Float64
}

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string, logger *logrus.Logger) *FileLoader {
	return &FileLoader{
		root:   dir,
		logger: logger,
		cache:  make(map[string]signal.Float64),
	}
}

// Load resolves a type tag into a voice. Composite resources name
// their sub-voice types joined with "+", e.g. "sine+noise".
func (l *FileLoader) Load(id uint64, typeTag, resource string) (Voice, error) {
	switch typeTag {
	case "sine":
		return NewSine(id), nil
	case "noise":
		return NewNoise(id), nil
	case "sampler":
		return NewSampler(id, l.frames(resource)), nil
	case "composite":
		parts := strings.Split(resource, "+")
		children := make([]Voice, 0, len(parts))
		for _, part := range parts {
			child, err := l.Load(id, strings.TrimSpace(part), "")
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return NewComposite(id, children...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeTag)
}

func (l *FileLoader) frames(resource string) signal.Float64 {
	if cached, ok := l.cache[resource]; ok {
		return cached
	}
	frames, err := decodeFile(filepath.Join(l.root, resource))
	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"resource": resource,
			"error":    err,
		}).Warn("resource load failed, substituting synthesized fallback")
		frames = Fallback(44100)
	}
	l.cache[resource] = frames
	return frames
}

// Fallback returns the deterministic resource substitute: one second
// of a decaying 440 Hz sine.
func Fallback(sampleRate float64) signal.Float64 {
	size := int(sampleRate)
	frames := signal.EmptyFloat64(2, size)
	for i := 0; i < size; i++ {
		t := float64(i) / sampleRate
		v := math.Sin(2*math.Pi*440*t) * math.Exp(-3*t)
		frames[0][i] = v
		frames[1][i] = v
	}
	return frames
}

func decodeFile(path string) (signal.Float64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWav(path)
	case ".mp3":
		return decodeMP3(path)
	case ".flac":
		return decodeFlac(path)
	}
	return nil, fmt.Errorf("unsupported resource format %q", filepath.Ext(path))
}

func decodeWav(path string) (signal.Float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("wav is not valid: %v", path)
	}
	depth := signal.BitDepth(decoder.BitDepth)
	if depth != signal.BitDepth16 && depth != signal.BitDepth32 {
		return nil, fmt.Errorf("unsupported wav bit depth %d", decoder.BitDepth)
	}

	numChannels := decoder.Format().NumChannels
	ib := &audio.IntBuffer{
		Format:         decoder.Format(),
		Data:           make([]int, 4096*numChannels),
		SourceBitDepth: int(decoder.BitDepth),
	}
	var frames signal.Float64
	for {
		read, err := decoder.PCMBuffer(ib)
		if err != nil {
			return nil, err
		}
		if read == 0 {
			return frames, nil
		}
		b := signal.InterInt{
			Data:        ib.Data[:read],
			NumChannels: numChannels,
			BitDepth:    depth,
		}.AsFloat64()
		frames = frames.Append(b)
	}
}

func decodeMP3(path string) (signal.Float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, err
	}

	// decoder output is 16-bit little-endian stereo PCM
	samples := len(raw) / 2
	data := make([]int, samples)
	for i := 0; i < samples; i++ {
		data[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	return signal.InterInt{
		Data:        data,
		NumChannels: 2,
		BitDepth:    signal.BitDepth16,
	}.AsFloat64(), nil
}

func decodeFlac(path string) (signal.Float64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	numChannels := int(stream.Info.NChannels)
	scale := float64(int64(1)<<(stream.Info.BitsPerSample-1)) - 1
	var frames signal.Float64
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		size := len(frame.Subframes[0].Samples)
		block := signal.EmptyFloat64(numChannels, size)
		for ch := 0; ch < numChannels; ch++ {
			for i, s := range frame.Subframes[ch].Samples {
				block[ch][i] = float64(s) / scale
			}
		}
		frames = frames.Append(block)
	}
}
