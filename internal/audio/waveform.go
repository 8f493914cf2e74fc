// Package audio holds the in-memory waveform produced by synthesis backends and the WAV
// container encoder used to hand it back to callers.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// MaxSampleRate is the highest sample rate accepted from a backend.
	MaxSampleRate = 192000

	// MaxChannels is the highest channel count accepted from a backend.
	MaxChannels = 8
)

// Errors returned by waveform validation and decoding.
var (
	ErrInvalidWaveform = errors.New("invalid waveform")
	ErrOddPCMLength    = errors.New("pcm16 data length is not a multiple of the frame size")
)

// Waveform is a sample-rate-tagged buffer of interleaved samples in the range [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// NewWaveform returns a mono waveform.
func NewWaveform(samples []float32, sampleRate int) *Waveform {
	return &Waveform{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   1,
	}
}

// Frames returns the number of sample frames (samples per channel).
func (w *Waveform) Frames() int {
	if w.Channels <= 0 {
		return 0
	}
	return len(w.Samples) / w.Channels
}

// Duration returns the playback length of the waveform.
func (w *Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(w.Frames()) * time.Second / time.Duration(w.SampleRate)
}

// Validate checks the waveform can be encoded.
func (w *Waveform) Validate() error {
	switch {
	case w == nil:
		return fmt.Errorf("%w: nil waveform", ErrInvalidWaveform)
	case w.SampleRate <= 0 || w.SampleRate > MaxSampleRate:
		return fmt.Errorf("%w: sample rate must be between 1 and %d Hz, got %d", ErrInvalidWaveform, MaxSampleRate, w.SampleRate)
	case w.Channels <= 0 || w.Channels > MaxChannels:
		return fmt.Errorf("%w: channels must be between 1 and %d, got %d", ErrInvalidWaveform, MaxChannels, w.Channels)
	case len(w.Samples) == 0:
		return fmt.Errorf("%w: no samples", ErrInvalidWaveform)
	case len(w.Samples)%w.Channels != 0:
		return fmt.Errorf("%w: %d samples do not divide into %d channels", ErrInvalidWaveform, len(w.Samples), w.Channels)
	}
	return nil
}

// FromPCM16 decodes little-endian signed 16-bit PCM into a waveform.
func FromPCM16(data []byte, sampleRate, channels int) (*Waveform, error) {
	if channels <= 0 {
		channels = 1
	}
	if len(data)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes, %d channels", ErrOddPCMLength, len(data), channels)
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		samples[i] = float32(v) / 32768
	}

	return &Waveform{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}
