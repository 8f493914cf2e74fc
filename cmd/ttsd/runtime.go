package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ekisa-team/ttsd/internal/archive"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/backend/bark"
	"github.com/ekisa-team/ttsd/internal/backend/piper"
	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/metrics"
	"github.com/ekisa-team/ttsd/internal/model"
	"github.com/ekisa-team/ttsd/internal/service"
)

const defaultPiperBin = "piper"

// runtime holds everything built from a config snapshot.
type runtime struct {
	backends *backend.Registry
	servers  *backend.ServerManager
	manager  *model.Manager
	metrics  *metrics.Metrics
	archive  *archive.NatsObjectStore
	tts      *service.TTS
	bark     *service.Bark
}

type runtimeOptions struct {
	archive bool
	metrics bool
}

// newRuntime registers backends and loads models. Backend and model failures are logged
// and leave the affected models unavailable; they do not abort startup.
func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) *runtime {
	rt := &runtime{
		backends: backend.NewRegistry(),
		servers:  backend.NewServerManager(),
	}

	if opts.metrics {
		rt.metrics = metrics.New()
	}

	rt.registerBackends(ctx, cfg)

	rt.manager = model.NewManager(rt.backends)
	rt.reload(ctx, cfg)

	svcOpts := []service.Option{service.WithMetrics(rt.metrics)}

	if opts.archive && cfg.Archive.Enabled() {
		store, err := archive.Connect(cfg.Archive.NatsURL, cfg.ArchiveBucket())
		if err != nil {
			slog.Error("Failed to connect audio archive, continuing without it", "url", cfg.Archive.NatsURL, "error", err)
		} else {
			rt.archive = store
			svcOpts = append(svcOpts, service.WithArchive(store))
			slog.Info("Audio archive enabled", "url", cfg.Archive.NatsURL, "bucket", store.Bucket())
		}
	}

	rt.tts = service.NewTTS(rt.manager, svcOpts...)
	rt.bark = service.NewBark(rt.manager, svcOpts...)

	return rt
}

func (rt *runtime) registerBackends(ctx context.Context, cfg *config.Config) {
	piperBin := cfg.Backends.Piper.BinPath
	if piperBin == "" {
		piperBin = defaultPiperBin
	}

	pb, err := piper.NewBackend(piperBin, cfg.Backends.Piper.Timeout)
	if err != nil {
		slog.Error("Piper backend unavailable", "bin_path", piperBin, "error", err)
	} else if err := rt.backends.Register(pb); err != nil {
		slog.Error("Failed to register backend", "provider", pb.Provider(), "error", err)
	}

	bc := cfg.Backends.Bark
	if !bc.Enabled() {
		return
	}

	bb, err := bark.NewBackend(ctx, bark.Config{
		Endpoint:     bc.Endpoint,
		BinPath:      bc.BinPath,
		Args:         bc.Args,
		Env:          bc.Env,
		Port:         bc.Port,
		HealthPath:   bc.HealthPath,
		ReadyTimeout: bc.ReadyTimeout,
		Timeout:      bc.Timeout,
	}, rt.servers)
	if err != nil {
		slog.Error("Bark backend unavailable", "error", err)
		return
	}

	if err := rt.backends.Register(bb); err != nil {
		slog.Error("Failed to register backend", "provider", bb.Provider(), "error", err)
	}
}

// reload loads the models of cfg and publishes their state to metrics.
func (rt *runtime) reload(ctx context.Context, cfg *config.Config) {
	if err := rt.manager.LoadModelsFromConfig(ctx, cfg); err != nil {
		slog.Error("Failed to load models from config", "error", err)
	}

	for _, instance := range rt.manager.Registry().List() {
		status, reason := instance.CurrentStatus()
		rt.metrics.SetModelLoaded(instance.ID, status == model.ModelStatusLoaded)
		slog.Info("Model status", "model_id", instance.ID, "status", status, "error", reason)
	}
}

// Close releases backends, helper servers and the archive connection.
func (rt *runtime) Close() error {
	var errs []error

	if err := rt.backends.Close(); err != nil {
		errs = append(errs, err)
	}
	rt.servers.StopAll()

	if rt.archive != nil {
		if err := rt.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
