package config

import (
	"errors"
	"time"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"

	// SourceTypeLocal represents a model already present on disk.
	SourceTypeLocal SourceType = "local"
)

// ErrNoSource is returned when a model declares no source.
var ErrNoSource = errors.New("no source configured for model")

// Config holds the main configuration for the application.
type Config struct {
	Version  string                 `json:"version"            yaml:"version"`
	Server   ServerConfig           `json:"server,omitempty"   yaml:"server,omitempty"`
	Storage  StorageConfig          `json:"storage,omitempty"  yaml:"storage,omitempty"`
	Backends BackendsConfig         `json:"backends,omitempty" yaml:"backends,omitempty"`
	Models   map[string]ModelConfig `json:"models"             yaml:"models"`
	Services ServicesConfig         `json:"services"           yaml:"services"`
	Archive  ArchiveConfig          `json:"archive,omitempty"  yaml:"archive,omitempty"`
}

// ServerConfig holds listener and request handling settings.
type ServerConfig struct {
	HTTPPort       int           `json:"http_port,omitempty"       yaml:"http_port,omitempty"`
	GRPCPort       int           `json:"grpc_port,omitempty"       yaml:"grpc_port,omitempty"`
	CORSOrigins    []string      `json:"cors_origins,omitempty"    yaml:"cors_origins,omitempty"`
	RateLimit      float64       `json:"rate_limit,omitempty"      yaml:"rate_limit,omitempty"` // requests per second, 0 disables
	Burst          int           `json:"burst,omitempty"           yaml:"burst,omitempty"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

// StorageConfig holds configuration for caching and auto-download.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// BackendsConfig holds per-backend process settings.
type BackendsConfig struct {
	Piper PiperBackendConfig `json:"piper,omitempty" yaml:"piper,omitempty"`
	Bark  BarkBackendConfig  `json:"bark,omitempty"  yaml:"bark,omitempty"`
}

// PiperBackendConfig configures the piper CLI.
type PiperBackendConfig struct {
	BinPath string        `json:"bin_path,omitempty" yaml:"bin_path,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"  yaml:"timeout,omitempty"`
}

// BarkBackendConfig configures the bark pipeline server.
type BarkBackendConfig struct {
	Endpoint     string            `json:"endpoint,omitempty"      yaml:"endpoint,omitempty"`
	BinPath      string            `json:"bin_path,omitempty"      yaml:"bin_path,omitempty"`
	Args         []string          `json:"args,omitempty"          yaml:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty"           yaml:"env,omitempty"`
	Port         int               `json:"port,omitempty"          yaml:"port,omitempty"`
	HealthPath   string            `json:"health_path,omitempty"   yaml:"health_path,omitempty"`
	ReadyTimeout time.Duration     `json:"ready_timeout,omitempty" yaml:"ready_timeout,omitempty"`
	Timeout      time.Duration     `json:"timeout,omitempty"       yaml:"timeout,omitempty"`
}

// Enabled reports whether a bark pipeline is configured.
func (b BarkBackendConfig) Enabled() bool {
	return b.Endpoint != "" || b.BinPath != ""
}

// ModelConfig holds configuration for a specific model.
type ModelConfig struct {
	Source      SourceConfig   `json:"source"                yaml:"source"`
	Type        string         `json:"type"                  yaml:"type"`
	Backend     string         `json:"backend"               yaml:"backend"`
	Tags        []string       `json:"tags,omitempty"        yaml:"tags,omitempty"`
	Order       int            `json:"order,omitempty"       yaml:"order,omitempty"`
	Concurrency int            `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"  yaml:"parameters,omitempty"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
	Local       *LocalSource       `json:"local,omitempty"       yaml:"local,omitempty"`
}

// ServicesConfig holds configuration for all services.
type ServicesConfig struct {
	TTS  ServicesConfigAssignment `json:"tts"            yaml:"tts"`
	Bark ServicesConfigAssignment `json:"bark,omitempty" yaml:"bark,omitempty"`
}

// ServicesConfigAssignment holds model assignments for a service.
type ServicesConfigAssignment struct {
	Models []string `json:"models" yaml:"models"` // List of model IDs, first is the default
}

// ArchiveConfig enables uploading synthesized audio to a NATS object store.
type ArchiveConfig struct {
	NatsURL string `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`
	Bucket  string `json:"bucket,omitempty"   yaml:"bucket,omitempty"`
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.NatsURL != ""
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// LocalSource points at a model directory or file on disk.
type LocalSource struct {
	Path string `json:"path" yaml:"path"`
}

// Type returns the local source type.
func (l LocalSource) Type() SourceType {
	return SourceTypeLocal
}

// GetSource returns the active source for the model.
func (m *ModelConfig) GetSource() (ModelSource, error) {
	switch {
	case m.Source.HuggingFace != nil:
		return *m.Source.HuggingFace, nil
	case m.Source.Local != nil:
		return *m.Source.Local, nil
	}

	return nil, ErrNoSource
}

// SetHuggingFaceSource sets the Hugging Face source.
func (m *ModelConfig) SetHuggingFaceSource(source HuggingFaceSource) {
	m.Source.HuggingFace = &source
	m.Source.Local = nil
}

// SetLocalSource sets the local source.
func (m *ModelConfig) SetLocalSource(source LocalSource) {
	m.Source.Local = &source
	m.Source.HuggingFace = nil
}
