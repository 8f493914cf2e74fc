package piper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/ttsd/internal/audio"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/mapsafe"
	"github.com/ekisa-team/ttsd/internal/xfs"
)

const (
	// DefaultTimeout bounds a single piper invocation.
	DefaultTimeout = 30 * time.Second

	modelExt     = ".onnx"
	voiceJSONExt = ".json"

	// ParamModelFile selects a specific .onnx file inside a downloaded model directory.
	ParamModelFile = "model_file"

	// ParamSampleRate overrides the sample rate read from the voice config.
	ParamSampleRate = backend.ParamSampleRate
)

// ErrAmbiguousModel is returned when a model directory holds several voices and
// no model_file parameter picks one.
var ErrAmbiguousModel = errors.New("multiple piper voices found")

// Backend implements backend.Backend for Piper TTS.
type Backend struct {
	executor *backend.Executor
}

var (
	_ backend.Backend        = (*Backend)(nil)
	_ backend.ModelLocator   = (*Backend)(nil)
	_ backend.VoiceInspector = (*Backend)(nil)
)

// NewBackend creates a new Piper backend.
func NewBackend(binPath string, timeout time.Duration) (*Backend, error) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return &Backend{executor: executor}, nil
}

// NewBackendWithExecutor creates a Piper backend around an existing executor.
func NewBackendWithExecutor(executor *backend.Executor) *Backend {
	return &Backend{executor: executor}
}

// Provider returns the backend identifier.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderPiper
}

// Infer synthesizes speech from text.
// Input: UTF-8 text.
// Output: mono waveform decoded from piper's raw 16-bit PCM stream.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	start := time.Now()

	sampleRate, ok := mapsafe.Lookup[int](req.Parameters, ParamSampleRate)
	if !ok || sampleRate <= 0 {
		voice, err := b.Inspect(req.ModelPath)
		if err != nil {
			return nil, err
		}
		sampleRate = voice.SampleRate
	}

	args := b.buildArgs(req)

	// Piper reads text from stdin and writes raw PCM to stdout.
	stdout, stderr, err := b.executor.Execute(ctx, args, req.Input)
	if err != nil {
		return nil, fmt.Errorf("piper: execution failed: %w\nstderr: %s", err, strings.TrimSpace(string(stderr)))
	}

	if len(stdout) == 0 {
		return nil, fmt.Errorf("piper: %w", backend.ErrEmptyOutput)
	}

	// A trailing odd byte means piper was cut off mid-sample.
	if len(stdout)%2 != 0 {
		stdout = stdout[:len(stdout)-1]
	}

	wf, err := audio.FromPCM16(stdout, sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("piper: %w", err)
	}

	return &backend.Response{
		Waveform: wf,
		Metadata: &backend.ResponseMetadata{
			Provider:  b.Provider(),
			Model:     req.ModelPath,
			Timestamp: time.Now(),
			Duration:  time.Since(start),
			BackendSpecific: map[string]any{
				"stderr": string(stderr),
				"args":   args,
			},
		},
	}, nil
}

// buildArgs builds Piper command-line arguments.
func (b *Backend) buildArgs(req *backend.Request) []string {
	args := []string{
		"--model", req.ModelPath,
		"--output_raw",
	}

	p := req.Parameters
	if p == nil {
		return args
	}

	// Speaker index
	if v, ok := mapsafe.Lookup[int](p, backend.ParamSpeakerID); ok {
		args = append(args, "--speaker", strconv.Itoa(v))
	}

	// Length scale (speed)
	if v, ok := mapsafe.Lookup[float64](p, "length_scale"); ok {
		args = append(args, "--length_scale", formatFloat(v))
	}

	// Noise scale
	if v, ok := mapsafe.Lookup[float64](p, "noise_scale"); ok {
		args = append(args, "--noise_scale", formatFloat(v))
	}

	// Noise width
	if v, ok := mapsafe.Lookup[float64](p, "noise_w"); ok {
		args = append(args, "--noise_w", formatFloat(v))
	}

	// Sentence silence
	if v, ok := mapsafe.Lookup[float64](p, "sentence_silence"); ok {
		args = append(args, "--sentence_silence", formatFloat(v))
	}

	return args
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ResolveModelPath finds the .onnx voice inside a downloaded model directory.
func (b *Backend) ResolveModelPath(basePath string, params map[string]any) (string, error) {
	if file, ok := mapsafe.Lookup[string](params, ParamModelFile); ok && file != "" {
		path := filepath.Join(basePath, file)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", backend.ErrModelFileNotFound, path)
		}
		return path, nil
	}

	info, err := os.Stat(basePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", backend.ErrModelFileNotFound, basePath)
	}
	if !info.IsDir() {
		return basePath, nil
	}

	matches, err := xfs.FindByExt(basePath, modelExt)
	if err != nil {
		return "", fmt.Errorf("piper: failed to scan %s: %w", basePath, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no %s file in %s", backend.ErrModelFileNotFound, modelExt, basePath)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w in %s, set %q", ErrAmbiguousModel, basePath, ParamModelFile)
	}
}

// voiceConfig is the subset of piper's <voice>.onnx.json we read.
type voiceConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	NumSpeakers  int            `json:"num_speakers"`
	SpeakerIDMap map[string]int `json:"speaker_id_map"`
}

// Inspect reads the voice config that sits next to the .onnx file.
func (b *Backend) Inspect(modelPath string) (*backend.VoiceInfo, error) {
	path := modelPath + voiceJSONExt

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("piper: failed to read voice config: %w", err)
	}

	var cfg voiceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("piper: failed to parse voice config %s: %w", path, err)
	}

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("piper: voice config %s has no audio.sample_rate", path)
	}

	return &backend.VoiceInfo{
		SampleRate: cfg.Audio.SampleRate,
		Language:   cfg.Language.Code,
		Speakers:   speakersFromConfig(&cfg),
	}, nil
}

// speakersFromConfig orders the speaker map by index, then by name.
// Multi-speaker voices without a name map get their indices as names.
func speakersFromConfig(cfg *voiceConfig) []backend.Speaker {
	if len(cfg.SpeakerIDMap) == 0 {
		if cfg.NumSpeakers <= 1 {
			return nil
		}
		speakers := make([]backend.Speaker, cfg.NumSpeakers)
		for i := range speakers {
			speakers[i] = backend.Speaker{Name: strconv.Itoa(i), Index: i}
		}
		return speakers
	}

	speakers := make([]backend.Speaker, 0, len(cfg.SpeakerIDMap))
	for name, idx := range cfg.SpeakerIDMap {
		speakers = append(speakers, backend.Speaker{Name: name, Index: idx})
	}

	sort.Slice(speakers, func(i, j int) bool {
		if speakers[i].Index != speakers[j].Index {
			return speakers[i].Index < speakers[j].Index
		}
		return speakers[i].Name < speakers[j].Name
	})

	return speakers
}

// Close cleans up resources. Piper does not have any resources to clean up.
func (b *Backend) Close() error {
	return nil
}
