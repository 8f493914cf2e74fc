package backend

import (
	"context"
	"io"
	"time"

	"github.com/ekisa-team/ttsd/internal/audio"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	BackendProviderPiper BackendProvider = "piper"
	BackendProviderBark  BackendProvider = "bark"
)

// Backend defines the core interface for all inference backends.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Infer executes inference and returns the complete waveform.
	Infer(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// Request encapsulates all parameters for an inference call.
type Request struct {
	// ModelPath is the path to the model file.
	ModelPath string

	// Input is the text to synthesize.
	Input io.Reader

	// Parameters contains backend-specific inference parameters.
	Parameters map[string]any
}

// Response contains the result of an inference operation.
type Response struct {
	// Waveform is the synthesized audio.
	Waveform *audio.Waveform

	// Metadata contains backend-specific information.
	Metadata *ResponseMetadata
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Provider        BackendProvider `json:"provider"`
	Model           string          `json:"model"`
	Timestamp       time.Time       `json:"timestamp"`
	Duration        time.Duration   `json:"duration"`
	BackendSpecific map[string]any  `json:"backend_specific,omitempty"`
}

// Parameter keys understood by TTS backends.
const (
	ParamSpeakerID  = "speaker_id"
	ParamLanguage   = "language"
	ParamSampleRate = "sample_rate"
)
