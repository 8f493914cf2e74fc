package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/ttsd/internal/audio"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/model"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Provider() backend.BackendProvider { return backend.BackendProviderPiper }

func (m *mockBackend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	text, _ := io.ReadAll(req.Input)
	args := m.Called(string(text), req.Parameters)
	if resp, ok := args.Get(0).(*backend.Response); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBackend) Close() error { return nil }

type resolver struct {
	byService map[model.Service][]*model.ModelInstance
}

func (r *resolver) Resolve(service model.Service, id string) (*model.ModelInstance, error) {
	list := r.byService[service]
	if len(list) == 0 {
		return nil, model.ErrNoModelAssigned
	}
	if id == "" {
		return list[0], nil
	}
	for _, mi := range list {
		if mi.ID == id {
			return mi, nil
		}
	}
	return nil, model.ErrNotAssigned
}

type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (a *memArchive) Upload(_ context.Context, key string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[key] = data
	return nil
}

func (a *memArchive) Download(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

var vctkSpeakers = []backend.Speaker{
	{Name: "p225", Index: 0},
	{Name: "p226", Index: 1},
	{Name: "p227", Index: 2},
	{Name: "p228", Index: 3},
	{Name: "p229", Index: 4},
	{Name: "p230", Index: 5},
	{Name: "p231", Index: 6},
}

func waveform() *backend.Response {
	return &backend.Response{Waveform: audio.NewWaveform([]float32{0, 0.5, -0.5, 0}, 22050)}
}

func loadedInstance(id string, b backend.Backend, voice *backend.VoiceInfo) *model.ModelInstance {
	mi := model.NewModelInstance(&config.ModelConfig{
		Backend:    "piper",
		Parameters: map[string]any{"length_scale": 1.0},
	}, id, "")
	mi.MarkLoaded(b, "/models/"+id, "/models/"+id+"/voice.onnx", voice)
	return mi
}

func newTTS(t *testing.T, voice *backend.VoiceInfo, opts ...Option) (*TTS, *mockBackend) {
	t.Helper()
	b := new(mockBackend)
	r := &resolver{byService: map[model.Service][]*model.ModelInstance{
		model.ServiceTTS: {loadedInstance("vctk", b, voice)},
	}}
	return NewTTS(r, opts...), b
}

func TestSynthesize_EmptyText(t *testing.T) {
	s, b := newTTS(t, &backend.VoiceInfo{SampleRate: 22050, Speakers: vctkSpeakers})

	_, err := s.Synthesize(context.Background(), SynthesisRequest{})
	assert.ErrorIs(t, err, ErrTextRequired)
	assert.True(t, IsClientError(err))
	b.AssertNotCalled(t, "Infer", mock.Anything, mock.Anything)
}

func TestSynthesize_UnknownSpeaker(t *testing.T) {
	s, _ := newTTS(t, &backend.VoiceInfo{SampleRate: 22050, Speakers: vctkSpeakers})

	_, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "hello", SpeakerID: "p999"})
	require.ErrorIs(t, err, ErrInvalidSpeaker)
	assert.True(t, IsClientError(err))

	var invalid *InvalidSpeakerError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"p225", "p226", "p227", "p228", "p229"}, invalid.Valid)
	assert.Contains(t, err.Error(), "p225, p226, p227, p228, p229...")
	assert.NotContains(t, err.Error(), "p230")
}

func TestSynthesize_DefaultSpeaker(t *testing.T) {
	s, b := newTTS(t, &backend.VoiceInfo{SampleRate: 22050, Speakers: vctkSpeakers})
	b.On("Infer", "hello", mock.MatchedBy(func(p map[string]any) bool {
		return p[backend.ParamSpeakerID] == 0 && p["length_scale"] == 1.0 && p[backend.ParamSampleRate] == 22050
	})).Return(waveform(), nil).Once()

	res, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "p225", res.Speaker)
	assert.Equal(t, "vctk", res.Model)
	assert.Equal(t, 22050, res.SampleRate)
	assert.True(t, bytes.HasPrefix(res.Audio, []byte("RIFF")))
	assert.Equal(t, "WAVE", string(res.Audio[8:12]))
	assert.Len(t, res.Audio, 44+4*2)
	b.AssertExpectations(t)
}

func TestSynthesize_ValidSpeaker(t *testing.T) {
	s, b := newTTS(t, &backend.VoiceInfo{SampleRate: 22050, Speakers: vctkSpeakers})
	b.On("Infer", "hello", mock.MatchedBy(func(p map[string]any) bool {
		return p[backend.ParamSpeakerID] == 3
	})).Return(waveform(), nil).Once()

	res, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "hello", SpeakerID: "  p228 ", LanguageID: "en"})
	require.NoError(t, err)
	assert.Equal(t, "p228", res.Speaker)
	b.AssertExpectations(t)
}

func TestSynthesize_NoSpeakerRegistry(t *testing.T) {
	s, b := newTTS(t, &backend.VoiceInfo{SampleRate: 22050})
	b.On("Infer", "hello", mock.MatchedBy(func(p map[string]any) bool {
		_, ok := p[backend.ParamSpeakerID]
		return !ok
	})).Return(waveform(), nil).Twice()

	res, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, res.Speaker)

	// A supplied speaker is ignored when the model has no registry.
	_, err = s.Synthesize(context.Background(), SynthesisRequest{Text: "hello", SpeakerID: "p225"})
	require.NoError(t, err)
	b.AssertExpectations(t)
}

func TestSynthesize_ModelUnavailable(t *testing.T) {
	failed := model.NewModelInstance(&config.ModelConfig{Backend: "piper"}, "vctk", "")
	failed.SetError(errors.New("voice config missing"))

	s := NewTTS(&resolver{byService: map[model.Service][]*model.ModelInstance{
		model.ServiceTTS: {failed},
	}})

	_, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorContains(t, err, "voice config missing")
	assert.False(t, IsClientError(err))

	// Even an empty request reports the model first.
	_, err = s.Synthesize(context.Background(), SynthesisRequest{})
	assert.ErrorIs(t, err, ErrModelUnavailable)

	assert.ErrorIs(t, s.Health(context.Background()), ErrModelUnavailable)
	assert.False(t, s.Ready())

	_, _, err = s.Speakers("")
	assert.ErrorIs(t, err, ErrModelUnavailable)

	empty := NewTTS(&resolver{})
	_, err = empty.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestSynthesize_BackendFailure(t *testing.T) {
	s, b := newTTS(t, &backend.VoiceInfo{SampleRate: 22050})
	b.On("Infer", "hello", mock.Anything).Return(nil, errors.New("onnx runtime crashed")).Once()

	_, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	assert.ErrorContains(t, err, "onnx runtime crashed")
	assert.NotErrorIs(t, err, ErrModelUnavailable)
	assert.False(t, IsClientError(err))
}

func TestSynthesize_EncodeFailure(t *testing.T) {
	s, b := newTTS(t, &backend.VoiceInfo{SampleRate: 22050})
	b.On("Infer", "hello", mock.Anything).
		Return(&backend.Response{Waveform: audio.NewWaveform(nil, 22050)}, nil).Once()

	_, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	assert.ErrorIs(t, err, audio.ErrInvalidWaveform)
}

func TestSynthesize_Archive(t *testing.T) {
	store := &memArchive{}
	s, b := newTTS(t, &backend.VoiceInfo{SampleRate: 22050}, WithArchive(store))
	b.On("Infer", mock.Anything, mock.Anything).Return(waveform(), nil)

	res, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, res.ArchiveKey)

	stored, err := store.Download(context.Background(), res.ArchiveKey)
	require.NoError(t, err)
	assert.Equal(t, res.Audio, stored)

	// Health checks are not archived.
	require.NoError(t, s.Health(context.Background()))
	assert.Len(t, store.objects, 1)

	// Archive failures do not fail the request.
	store.err = errors.New("bucket offline")
	res, err = s.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveKey)
}

func TestHealth(t *testing.T) {
	s, b := newTTS(t, &backend.VoiceInfo{SampleRate: 22050, Speakers: vctkSpeakers})
	b.On("Infer", HealthCheckText, mock.Anything).Return(waveform(), nil).Once()

	require.NoError(t, s.Health(context.Background()))
	assert.True(t, s.Ready())
	b.AssertExpectations(t)
}

func TestSpeakers(t *testing.T) {
	s, _ := newTTS(t, &backend.VoiceInfo{SampleRate: 22050, Speakers: vctkSpeakers})
	names, ok, err := s.Speakers("")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, names, len(vctkSpeakers))
	assert.Equal(t, "p225", names[0])

	single, _ := newTTS(t, &backend.VoiceInfo{SampleRate: 22050})
	names, ok, err = single.Speakers("")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, names)
	assert.NotNil(t, names)
}

func TestSynthesize_SerializesPerModel(t *testing.T) {
	s, b := newTTS(t, &backend.VoiceInfo{SampleRate: 22050})

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	b.On("Infer", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	}).Return(waveform(), nil)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Synthesize(context.Background(), SynthesisRequest{Text: fmt.Sprintf("line %d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestBark(t *testing.T) {
	b := new(mockBackend)
	r := &resolver{byService: map[model.Service][]*model.ModelInstance{
		model.ServiceBark: {loadedInstance("bark-small", b, &backend.VoiceInfo{SampleRate: 24000})},
	}}
	b.On("Infer", "hi", mock.Anything).Return(&backend.Response{
		Waveform: audio.NewWaveform([]float32{0.1, 0.2}, 24000),
	}, nil).Once()

	s := NewBark(r)
	res, err := s.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 24000, res.SampleRate)
	assert.Equal(t, "bark-small", res.Model)

	_, err = s.Synthesize(context.Background(), "")
	assert.ErrorIs(t, err, ErrTextRequired)

	_, err = NewBark(&resolver{}).Synthesize(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "é...", truncate("éé", 1))
}
