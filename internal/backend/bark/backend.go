// Package bark talks to an external transformer text-to-speech pipeline over HTTP.
package bark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ekisa-team/ttsd/internal/audio"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/mapsafe"
)

const (
	// DefaultSampleRate is the rate bark pipelines emit.
	DefaultSampleRate = 24000

	// DefaultTimeout bounds a single synthesis call.
	DefaultTimeout = 120 * time.Second

	// ParamPipelineModel overrides the pipeline model name sent to the server.
	ParamPipelineModel = "pipeline_model"

	serverName      = "bark"
	synthesizePath  = "/synthesize"
	maxErrorBodyLen = 512
)

// ErrNoEndpoint is returned when neither an endpoint nor a server binary is configured.
var ErrNoEndpoint = errors.New("bark: no endpoint or bin_path configured")

// Config describes how to reach the pipeline server.
type Config struct {
	// Endpoint is the base URL of an already running pipeline server.
	Endpoint string

	// BinPath, when set, spawns the pipeline server locally.
	BinPath      string
	Args         []string
	Env          map[string]string
	Port         int
	HealthPath   string
	ReadyTimeout time.Duration

	// Timeout bounds each synthesis request.
	Timeout time.Duration
}

// Backend implements backend.Backend for a bark pipeline server.
type Backend struct {
	client   *http.Client
	servers  *backend.ServerManager
	endpoint string
	spawned  bool
}

var (
	_ backend.Backend        = (*Backend)(nil)
	_ backend.ModelLocator   = (*Backend)(nil)
	_ backend.VoiceInspector = (*Backend)(nil)
)

// NewBackend creates a bark backend, spawning the pipeline server if cfg.BinPath is set.
func NewBackend(ctx context.Context, cfg Config, servers *backend.ServerManager) (*Backend, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	b := &Backend{
		client:   &http.Client{Timeout: timeout},
		servers:  servers,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
	}

	if cfg.BinPath != "" {
		if servers == nil {
			return nil, errors.New("bark: server manager required to spawn pipeline")
		}

		proc, err := servers.StartServer(ctx, backend.ServerConfig{
			Name:         serverName,
			BinPath:      cfg.BinPath,
			Args:         cfg.Args,
			Env:          cfg.Env,
			Port:         cfg.Port,
			HealthPath:   cfg.HealthPath,
			ReadyTimeout: cfg.ReadyTimeout,
		})
		if err != nil {
			return nil, err
		}

		b.endpoint = proc.BaseURL()
		b.spawned = true
	}

	if b.endpoint == "" {
		return nil, ErrNoEndpoint
	}

	return b, nil
}

// Provider returns the backend identifier.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderBark
}

// Endpoint returns the pipeline base URL.
func (b *Backend) Endpoint() string {
	return b.endpoint
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type synthesizeResponse struct {
	Audio        []float32 `json:"audio"`
	SamplingRate int       `json:"sampling_rate"`
}

// Infer sends the text to the pipeline and returns its waveform.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	start := time.Now()

	text, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, fmt.Errorf("bark: failed to read input: %w", err)
	}

	body, err := json.Marshal(synthesizeRequest{Text: string(text), Model: req.ModelPath})
	if err != nil {
		return nil, fmt.Errorf("bark: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+synthesizePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bark: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bark: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return nil, fmt.Errorf("bark: pipeline returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("bark: failed to decode response: %w", err)
	}

	if len(out.Audio) == 0 {
		return nil, fmt.Errorf("bark: %w", backend.ErrEmptyOutput)
	}

	sampleRate := out.SamplingRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	return &backend.Response{
		Waveform: audio.NewWaveform(out.Audio, sampleRate),
		Metadata: &backend.ResponseMetadata{
			Provider:  b.Provider(),
			Model:     req.ModelPath,
			Timestamp: time.Now(),
			Duration:  time.Since(start),
			BackendSpecific: map[string]any{
				"endpoint": b.endpoint,
			},
		},
	}, nil
}

// ResolveModelPath returns the pipeline model name. The pipeline server owns the weights,
// so the downloaded path is only used when no explicit name is configured.
func (b *Backend) ResolveModelPath(basePath string, params map[string]any) (string, error) {
	if name, ok := mapsafe.Lookup[string](params, ParamPipelineModel); ok && name != "" {
		return name, nil
	}
	return basePath, nil
}

// Inspect reports the pipeline's fixed voice: no speaker registry.
func (b *Backend) Inspect(string) (*backend.VoiceInfo, error) {
	return &backend.VoiceInfo{SampleRate: DefaultSampleRate}, nil
}

// Close stops the pipeline server if this backend spawned it.
func (b *Backend) Close() error {
	if !b.spawned {
		return nil
	}
	return b.servers.StopServer(serverName)
}
