package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ekisa-team/ttsd/internal/archive"
	"github.com/ekisa-team/ttsd/internal/audio"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/metrics"
	"github.com/ekisa-team/ttsd/internal/model"
)

// HealthCheckText is synthesized by Health.
const HealthCheckText = "Health check"

const logTextLimit = 100

// ModelResolver looks up model instances by service.
type ModelResolver interface {
	Resolve(service model.Service, id string) (*model.ModelInstance, error)
}

// Option configures a TTS or Bark service.
type Option func(*options)

type options struct {
	archive archive.Store
	metrics *metrics.Metrics
}

// WithArchive uploads every synthesized WAV to store.
func WithArchive(store archive.Store) Option {
	return func(o *options) {
		o.archive = store
	}
}

// WithMetrics records synthesis metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// SynthesisRequest is a text-to-speech request.
type SynthesisRequest struct {
	Text      string
	SpeakerID string
	// LanguageID is accepted for compatibility and not used by the models.
	LanguageID string
	ModelID    string
}

// SynthesisResult is an encoded WAV with its provenance.
type SynthesisResult struct {
	Audio      []byte
	Model      string
	Speaker    string
	SampleRate int
	Duration   time.Duration
	ArchiveKey string
}

// TTS is a service abstraction for text-to-speech.
type TTS struct {
	models ModelResolver
	opts   options
}

// NewTTS creates a new TTS service.
func NewTTS(models ModelResolver, opts ...Option) *TTS {
	s := &TTS{models: models}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// Synthesize validates the request, resolves the speaker and returns the WAV.
func (s *TTS) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	return s.synthesize(ctx, req, true)
}

func (s *TTS) synthesize(ctx context.Context, req SynthesisRequest, archived bool) (*SynthesisResult, error) {
	instance, err := loadedModel(s.models, model.ServiceTTS, req.ModelID)
	if err != nil {
		return nil, err
	}

	slog.Info("Processing text", "model_id", instance.ID, "text", truncate(req.Text, logTextLimit))

	if req.Text == "" {
		slog.Warn("Empty text parameter received", "model_id", instance.ID)
		return nil, ErrTextRequired
	}

	params := modelParams(instance)

	speaker, err := resolveSpeaker(instance.VoiceInfo(), req.SpeakerID)
	if err != nil {
		return nil, err
	}
	if speaker != nil {
		params[backend.ParamSpeakerID] = speaker.Index
	}

	return run(ctx, instance, req.Text, params, speakerName(speaker), s.opts, archived)
}

// resolveSpeaker picks the speaker for a request.
// Without a registry the requested id is ignored; without a requested id the first
// registry entry is used.
func resolveSpeaker(voice *backend.VoiceInfo, requested string) (*backend.Speaker, error) {
	if !voice.MultiSpeaker() {
		if requested != "" {
			slog.Debug("Model has no speaker registry, ignoring speaker_id", "speaker_id", requested)
		} else {
			slog.Info("No speaker_id provided and no speaker registry available, proceeding without speaker selection")
		}
		return nil, nil
	}

	if requested == "" {
		if len(voice.Speakers) == 0 {
			return nil, nil
		}
		first := voice.Speakers[0]
		slog.Info("No speaker_id provided, using default speaker", "speaker_id", first.Name)
		return &first, nil
	}

	clean := strings.TrimSpace(requested)
	sp, ok := voice.Speaker(clean)
	if !ok {
		return nil, newInvalidSpeakerError(clean, voice.SpeakerNames())
	}
	return &sp, nil
}

// Speakers returns the speaker names of a model and whether it supports multiple speakers.
func (s *TTS) Speakers(modelID string) ([]string, bool, error) {
	instance, err := loadedModel(s.models, model.ServiceTTS, modelID)
	if err != nil {
		return nil, false, err
	}

	voice := instance.VoiceInfo()
	if !voice.MultiSpeaker() {
		return []string{}, false, nil
	}
	return voice.SpeakerNames(), true, nil
}

// Health synthesizes a fixed sentence with the default model and speaker.
func (s *TTS) Health(ctx context.Context) error {
	_, err := s.synthesize(ctx, SynthesisRequest{Text: HealthCheckText}, false)
	return err
}

// Ready reports whether the default model is loaded without running inference.
func (s *TTS) Ready() bool {
	_, err := loadedModel(s.models, model.ServiceTTS, "")
	return err == nil
}

// loadedModel resolves a model and checks it can serve requests.
func loadedModel(models ModelResolver, service model.Service, id string) (*model.ModelInstance, error) {
	instance, err := models.Resolve(service, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	status, reason := instance.CurrentStatus()
	if status != model.ModelStatusLoaded {
		if reason == "" {
			reason = string(status)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrModelUnavailable, instance.ID, reason)
	}

	return instance, nil
}

// run performs one backend inference under the model's concurrency limit and encodes the result.
func run(
	ctx context.Context,
	instance *model.ModelInstance,
	text string,
	params map[string]any,
	speaker string,
	opts options,
	archived bool,
) (result *SynthesisResult, err error) {
	b := instance.Backend()
	if b == nil {
		return nil, fmt.Errorf("%w: %s has no backend", ErrModelUnavailable, instance.ID)
	}

	release, err := instance.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for model %s: %w", instance.ID, err)
	}
	defer release()

	done := opts.metrics.StartSynthesis(instance.ID)
	defer func() {
		var d time.Duration
		if result != nil {
			d = result.Duration
		}
		done(d, err)
	}()

	resp, err := b.Infer(ctx, &backend.Request{
		ModelPath:  instance.ResolvedPath(),
		Input:      strings.NewReader(text),
		Parameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	if resp.Waveform == nil {
		return nil, fmt.Errorf("synthesis failed: %w", backend.ErrEmptyOutput)
	}

	slog.Info("Converting to audio bytes", "model_id", instance.ID, "samples", len(resp.Waveform.Samples))

	var buf bytes.Buffer
	if _, err := audio.EncodeWAV(&buf, resp.Waveform); err != nil {
		return nil, fmt.Errorf("failed to encode wav: %w", err)
	}

	result = &SynthesisResult{
		Audio:      buf.Bytes(),
		Model:      instance.ID,
		Speaker:    speaker,
		SampleRate: resp.Waveform.SampleRate,
		Duration:   resp.Waveform.Duration(),
	}

	if archived && opts.archive != nil {
		key := archive.NewKey()
		if err := opts.archive.Upload(ctx, key, result.Audio); err != nil {
			slog.Warn("Failed to archive audio", "model_id", instance.ID, "key", key, "error", err)
		} else {
			result.ArchiveKey = key
		}
	}

	slog.Info("Successfully generated audio",
		"model_id", instance.ID,
		"speaker_id", speaker,
		"duration", result.Duration,
		"bytes", len(result.Audio),
	)

	return result, nil
}

func speakerName(s *backend.Speaker) string {
	if s == nil {
		return ""
	}
	return s.Name
}

func cloneParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// modelParams returns the configured parameters plus the sample rate inspected at load time.
func modelParams(instance *model.ModelInstance) map[string]any {
	params := cloneParams(instance.Config.Parameters)
	if _, ok := params[backend.ParamSampleRate]; ok {
		return params
	}
	if voice := instance.VoiceInfo(); voice != nil && voice.SampleRate > 0 {
		params[backend.ParamSampleRate] = voice.SampleRate
	}
	return params
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
