package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/config/source"
)

// Service names a group of model assignments in the config.
type Service string

const (
	ServiceTTS  Service = "tts"
	ServiceBark Service = "bark"
)

// DownloaderFunc picks a downloader for a model.
type DownloaderFunc func(*config.ModelConfig) (source.Downloader, error)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDownloader overrides how model sources are fetched.
func WithDownloader(fn DownloaderFunc) ManagerOption {
	return func(m *Manager) {
		m.downloader = fn
	}
}

// Manager orchestrates model lifecycle for any model type.
type Manager struct {
	registry   *Registry
	backends   *backend.Registry
	downloader DownloaderFunc
	mu         sync.RWMutex // guards registry
	loadMu     sync.Mutex   // serializes loads
}

// NewManager creates a new Manager that binds models to the given backends.
func NewManager(backends *backend.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry:   NewRegistry(nil),
		backends:   backends,
		downloader: source.GetDownloader,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Registry returns the model registry.
func (m *Manager) Registry() *Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry
}

// LoadModelsFromConfig loads every model assigned to a service and swaps in a new registry.
// A model that fails to load is kept in the registry as failed and loading continues;
// the joined load errors are returned.
func (m *Manager) LoadModelsFromConfig(ctx context.Context, cfg *config.Config) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	registry := NewRegistry(cfg)

	modelsPath, err := source.EnsureModelsDirectory(cfg.ModelsDir())
	if err != nil {
		return fmt.Errorf("failed to prepare models directory: %w", err)
	}

	var errs []error
	for _, modelID := range assignedModels(cfg) {
		modelConfig, ok := cfg.Models[modelID]
		if !ok {
			slog.Warn("Model not found in config", "model_id", modelID)
			continue
		}

		instance := NewModelInstance(&modelConfig, modelID, "")
		instance.SetStatus(ModelStatusLoading)
		registry.Set(instance)

		if err := m.load(ctx, instance, modelsPath); err != nil {
			instance.SetError(err)
			errs = append(errs, fmt.Errorf("model %s: %w", modelID, err))
			slog.Error("Failed to load model", "model_id", modelID, "error", err)
			continue
		}

		voice := instance.VoiceInfo()
		slog.Info("Model loaded into registry",
			"model_id", modelID,
			"model_path", instance.ResolvedPath(),
			"sample_rate", voice.SampleRate,
			"speakers", len(voice.Speakers),
		)
	}

	m.mu.Lock()
	previous := m.registry
	m.registry = registry
	m.mu.Unlock()

	// Report models dropped by this config
	for _, instance := range previous.List() {
		if _, ok := registry.Get(instance.ID); !ok {
			instance.SetStatus(ModelStatusUnloaded)
			slog.Info("Model unloaded successfully", "model_entry", instance.ID)
		}
	}

	return errors.Join(errs...)
}

// load downloads, locates and inspects a single model.
func (m *Manager) load(ctx context.Context, instance *ModelInstance, modelsPath string) error {
	provider := backend.BackendProvider(instance.Config.Backend)

	b, ok := m.backends.Get(provider)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBackendMissing, provider)
	}

	downloader, err := m.downloader(instance.Config)
	if err != nil {
		return fmt.Errorf("failed to get downloader: %w", err)
	}

	downloadPath, cached, err := downloader.Download(ctx, instance.Config, modelsPath)
	if err != nil {
		return fmt.Errorf("failed to download into %s: %w", modelsPath, err)
	}
	slog.Debug("Model source ready", "model_id", instance.ID, "path", downloadPath, "cached", cached)

	modelPath := downloadPath
	if locator, ok := b.(backend.ModelLocator); ok {
		modelPath, err = locator.ResolveModelPath(downloadPath, instance.Config.Parameters)
		if err != nil {
			return fmt.Errorf("failed to resolve model path: %w", err)
		}
	}

	voice := &backend.VoiceInfo{}
	if inspector, ok := b.(backend.VoiceInspector); ok {
		voice, err = inspector.Inspect(modelPath)
		if err != nil {
			return fmt.Errorf("failed to inspect model: %w", err)
		}
	}

	instance.MarkLoaded(b, downloadPath, modelPath, voice)
	return nil
}

// Get returns the instance with the given id.
func (m *Manager) Get(id string) (*ModelInstance, error) {
	instance, ok := m.Registry().Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return instance, nil
}

// Default returns the first model assigned to service.
func (m *Manager) Default(service Service) (*ModelInstance, error) {
	return m.Resolve(service, "")
}

// Resolve returns the model with id if it is assigned to service, or the service default when id is empty.
func (m *Manager) Resolve(service Service, id string) (*ModelInstance, error) {
	registry := m.Registry()
	cfg := registry.Config()
	if cfg == nil {
		return nil, ErrNoConfigLoaded
	}

	assigned := serviceModels(cfg, service)
	if id == "" {
		if len(assigned) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoModelAssigned, service)
		}
		id = assigned[0]
	} else if !slices.Contains(assigned, id) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNotAssigned, service, id)
	}

	instance, ok := registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return instance, nil
}

// Models returns the instances assigned to service in assignment order.
func (m *Manager) Models(service Service) []*ModelInstance {
	registry := m.Registry()
	cfg := registry.Config()
	if cfg == nil {
		return nil
	}

	var out []*ModelInstance
	for _, id := range serviceModels(cfg, service) {
		if instance, ok := registry.Get(id); ok {
			out = append(out, instance)
		}
	}
	return out
}

func serviceModels(cfg *config.Config, service Service) []string {
	switch service {
	case ServiceTTS:
		return cfg.Services.TTS.Models
	case ServiceBark:
		return cfg.Services.Bark.Models
	}
	return nil
}

// assignedModels returns the unique model ids of all services in assignment order.
func assignedModels(cfg *config.Config) []string {
	var ids []string
	for _, service := range []Service{ServiceTTS, ServiceBark} {
		for _, id := range serviceModels(cfg, service) {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
