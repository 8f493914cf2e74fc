package model

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/config"
)

// ModelType is the type of a model.
type ModelType string

const (
	// ModelTypeTTS is the type of a text-to-speech model.
	ModelTypeTTS ModelType = "tts"
)

// ModelStatus is the current loading status of a model.
type ModelStatus string

const (
	// ModelStatusUnloaded indicates that the model is not loaded.
	ModelStatusUnloaded ModelStatus = "unloaded"

	// ModelStatusLoading indicates that the model is being loaded.
	ModelStatusLoading ModelStatus = "loading"

	// ModelStatusLoaded indicates that the model is loaded.
	ModelStatusLoaded ModelStatus = "loaded"

	// ModelStatusFailed indicates that the model failed to load.
	ModelStatusFailed ModelStatus = "failed"

	// ModelStatusUnloading indicates that the model is being unloaded.
	ModelStatusUnloading ModelStatus = "unloading"
)

// ModelInstance represents a loaded model profile.
type ModelInstance struct {
	Config    *config.ModelConfig `json:"config"`
	LoadedAt  *time.Time          `json:"loaded_at,omitempty"`
	Voice     *backend.VoiceInfo  `json:"voice,omitempty"`
	ID        string              `json:"id"`
	Path      string              `json:"-"`
	ModelPath string              `json:"-"`
	Status    ModelStatus         `json:"status"`
	Error     string              `json:"error,omitempty"`

	backend backend.Backend
	sem     *semaphore.Weighted
	mu      sync.RWMutex
}

// NewModelInstance creates a new model instance.
func NewModelInstance(cfg *config.ModelConfig, id, path string) *ModelInstance {
	concurrency := int64(1)
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = int64(cfg.Concurrency)
	}

	return &ModelInstance{
		ID:     id,
		Path:   path,
		Config: cfg,
		Status: ModelStatusUnloaded,
		sem:    semaphore.NewWeighted(concurrency),
	}
}

// SetStatus sets the status of the model instance.
func (mi *ModelInstance) SetStatus(status ModelStatus) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.Status = status
	if status == ModelStatusLoaded {
		now := time.Now()
		mi.LoadedAt = &now
	}
}

// SetError records a load failure and marks the instance failed.
func (mi *ModelInstance) SetError(err error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.Status = ModelStatusFailed
	mi.Error = err.Error()
}

// MarkLoaded records everything needed to run inference and marks the instance loaded.
func (mi *ModelInstance) MarkLoaded(b backend.Backend, path, modelPath string, voice *backend.VoiceInfo) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	now := time.Now()
	mi.backend = b
	mi.Path = path
	mi.ModelPath = modelPath
	mi.Voice = voice
	mi.Status = ModelStatusLoaded
	mi.Error = ""
	mi.LoadedAt = &now
}

// CurrentStatus returns the status and last error.
func (mi *ModelInstance) CurrentStatus() (ModelStatus, string) {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return mi.Status, mi.Error
}

// IsLoaded reports whether the instance can serve requests.
func (mi *ModelInstance) IsLoaded() bool {
	status, _ := mi.CurrentStatus()
	return status == ModelStatusLoaded
}

// Backend returns the backend bound at load time.
func (mi *ModelInstance) Backend() backend.Backend {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return mi.backend
}

// VoiceInfo returns the voice metadata read at load time.
func (mi *ModelInstance) VoiceInfo() *backend.VoiceInfo {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return mi.Voice
}

// ResolvedPath returns the model file passed to the backend.
func (mi *ModelInstance) ResolvedPath() string {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return mi.ModelPath
}

// Acquire blocks until the instance has capacity for one more inference.
func (mi *ModelInstance) Acquire(ctx context.Context) (release func(), err error) {
	if err := mi.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { mi.sem.Release(1) }, nil
}
