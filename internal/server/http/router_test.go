package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/ttsd/internal/audio"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/metrics"
	"github.com/ekisa-team/ttsd/internal/model"
	"github.com/ekisa-team/ttsd/internal/service"
)

type stubBackend struct {
	err    error
	panics bool
	calls  []map[string]any
	texts  []string
}

func (s *stubBackend) Provider() backend.BackendProvider { return backend.BackendProviderPiper }

func (s *stubBackend) Infer(_ context.Context, req *backend.Request) (*backend.Response, error) {
	if s.panics {
		panic("vocoder exploded")
	}
	text, _ := io.ReadAll(req.Input)
	s.texts = append(s.texts, string(text))
	s.calls = append(s.calls, req.Parameters)
	if s.err != nil {
		return nil, s.err
	}
	return &backend.Response{Waveform: audio.NewWaveform([]float32{0, 0.25, -0.25}, 22050)}, nil
}

func (s *stubBackend) Close() error { return nil }

type stubResolver map[model.Service]*model.ModelInstance

func (r stubResolver) Resolve(svc model.Service, _ string) (*model.ModelInstance, error) {
	mi, ok := r[svc]
	if !ok {
		return nil, model.ErrNoModelAssigned
	}
	return mi, nil
}

var speakers = []backend.Speaker{
	{Name: "p225", Index: 0}, {Name: "p226", Index: 1}, {Name: "p227", Index: 2},
	{Name: "p228", Index: 3}, {Name: "p229", Index: 4}, {Name: "p230", Index: 5},
}

func loaded(id string, b backend.Backend, voice *backend.VoiceInfo) *model.ModelInstance {
	mi := model.NewModelInstance(&config.ModelConfig{Backend: string(b.Provider())}, id, "")
	mi.MarkLoaded(b, "/models/"+id, "/models/"+id+".onnx", voice)
	return mi
}

func newTestRouter(t *testing.T, r stubResolver, srv config.ServerConfig) http.Handler {
	t.Helper()
	h, _ := NewRouter(RouterDeps{
		TTS:     service.NewTTS(r),
		Bark:    service.NewBark(r),
		Metrics: metrics.New(),
		Server:  srv,
		Version: "test",
	})
	return h
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func multiSpeaker(b *stubBackend) stubResolver {
	return stubResolver{model.ServiceTTS: loaded("vctk", b, &backend.VoiceInfo{SampleRate: 22050, Speakers: speakers})}
}

func TestTTS_EmptyText(t *testing.T) {
	h := newTestRouter(t, multiSpeaker(&stubBackend{}), config.ServerConfig{})

	for _, rec := range []*httptest.ResponseRecorder{
		do(t, h, http.MethodGet, "/api/tts", ""),
		do(t, h, http.MethodGet, "/api/tts?text=", ""),
		do(t, h, http.MethodPost, "/api/tts", `{"speaker_id":"p225"}`),
	} {
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, DetailTextRequired, decode(t, rec)["detail"])
	}
}

func TestTTS_UnknownSpeaker(t *testing.T) {
	h := newTestRouter(t, multiSpeaker(&stubBackend{}), config.ServerConfig{})

	rec := do(t, h, http.MethodGet, "/api/tts?text=hi&speaker_id=p999", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	detail := decode(t, rec)["detail"].(string)
	assert.Equal(t, "Invalid speaker_id. Valid options: [p225 p226 p227 p228 p229]...", detail)
}

func TestTTS_DefaultSpeaker(t *testing.T) {
	b := &stubBackend{}
	h := newTestRouter(t, multiSpeaker(b), config.ServerConfig{})

	rec := do(t, h, http.MethodGet, "/api/tts?text="+url.QueryEscape("Hello world"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, audio.ContentTypeWAV, rec.Header().Get("Content-Type"))
	assert.Equal(t, AttachmentDisposition, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "p225", rec.Header().Get("X-Speaker-ID"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "RIFF", rec.Body.String()[:4])
	assert.Equal(t, "WAVE", rec.Body.String()[8:12])

	require.Len(t, b.calls, 1)
	assert.Equal(t, 0, b.calls[0][backend.ParamSpeakerID])
	assert.Equal(t, []string{"Hello world"}, b.texts)
}

func TestTTS_ValidSpeaker(t *testing.T) {
	b := &stubBackend{}
	h := newTestRouter(t, multiSpeaker(b), config.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/api/tts", `{"text":"Hello","speaker_id":"p227","language_id":"en","extra":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "p227", rec.Header().Get("X-Speaker-ID"))
	assert.Equal(t, 2, b.calls[0][backend.ParamSpeakerID])

	// POST without a body falls back to the query string.
	rec = do(t, h, http.MethodPost, "/api/tts?text=Hello&speaker_id=p226", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "p226", rec.Header().Get("X-Speaker-ID"))
}

func TestTTS_ModelUnavailable(t *testing.T) {
	failed := model.NewModelInstance(&config.ModelConfig{Backend: "piper"}, "vctk", "")
	failed.SetError(errors.New("voice config missing"))
	h := newTestRouter(t, stubResolver{model.ServiceTTS: failed}, config.ServerConfig{})

	for _, rec := range []*httptest.ResponseRecorder{
		do(t, h, http.MethodGet, "/api/tts?text=hi", ""),
		do(t, h, http.MethodPost, "/api/tts", `{"text":"hi"}`),
		do(t, h, http.MethodGet, "/api/tts", ""),
	} {
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, DetailModelUnavailable, decode(t, rec)["detail"])
	}

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Contains(t, body["error"], "voice config missing")
	assert.NotEmpty(t, body["timestamp"])
	assert.NotContains(t, body, "model_loaded")
}

func TestTTS_InternalError(t *testing.T) {
	h := newTestRouter(t, multiSpeaker(&stubBackend{err: errors.New("onnx runtime crashed")}), config.ServerConfig{})

	rec := do(t, h, http.MethodGet, "/api/tts?text=hi", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	assert.Regexp(t, `^\d{8}_\d{6}$`, body["error_id"])
	assert.Equal(t, "errors.errorString", body["error_type"])
	assert.Contains(t, body["error_message"], "onnx runtime crashed")
	assert.Contains(t, body["traceback"], "onnx runtime crashed")
}

func TestTTS_Panic(t *testing.T) {
	h := newTestRouter(t, multiSpeaker(&stubBackend{panics: true}), config.ServerConfig{})

	rec := do(t, h, http.MethodGet, "/api/tts?text=hi", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "string", body["error_type"])
	assert.Equal(t, "vocoder exploded", body["error_message"])
	assert.Contains(t, body["traceback"], "goroutine")
}

func TestHealth(t *testing.T) {
	b := &stubBackend{}
	h := newTestRouter(t, multiSpeaker(b), config.ServerConfig{})

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, []string{service.HealthCheckText}, b.texts)
}

func TestSpeakers(t *testing.T) {
	h := newTestRouter(t, multiSpeaker(&stubBackend{}), config.ServerConfig{})
	rec := do(t, h, http.MethodGet, "/api/speakers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Len(t, body["speakers"], len(speakers))
	assert.NotContains(t, body, "message")

	single := stubResolver{model.ServiceTTS: loaded("ljs", &stubBackend{}, &backend.VoiceInfo{SampleRate: 22050})}
	h = newTestRouter(t, single, config.ServerConfig{})
	rec = do(t, h, http.MethodGet, "/api/speakers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body = decode(t, rec)
	assert.Equal(t, []any{}, body["speakers"])
	assert.Equal(t, MessageNoSpeakers, body["message"])
}

func TestBark(t *testing.T) {
	b := &stubBackend{}
	r := stubResolver{model.ServiceBark: loaded("bark", b, &backend.VoiceInfo{SampleRate: 24000})}
	h := newTestRouter(t, r, config.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/api/tts/bark", `{"text":"Hello"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, audio.ContentTypeWAV, rec.Header().Get("Content-Type"))
	assert.Equal(t, AttachmentDisposition, rec.Header().Get("Content-Disposition"))

	// No bark pipeline configured.
	h = newTestRouter(t, multiSpeaker(&stubBackend{}), config.ServerConfig{})
	rec = do(t, h, http.MethodPost, "/api/tts/bark", `{"text":"Hello"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, DetailBarkUnavailable, decode(t, rec)["detail"])
}

func TestRateLimit(t *testing.T) {
	h := newTestRouter(t, multiSpeaker(&stubBackend{}), config.ServerConfig{RateLimit: 1, Burst: 1})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/speakers", "").Code)

	rec := do(t, h, http.MethodGet, "/api/speakers", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests", decode(t, rec)["detail"])

	// Probes are never limited.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
}

func TestCORS(t *testing.T) {
	h := newTestRouter(t, multiSpeaker(&stubBackend{}), config.ServerConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/api/tts", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	h = newTestRouter(t, multiSpeaker(&stubBackend{}), config.ServerConfig{CORSOrigins: []string{"https://app.example.com"}})
	req = httptest.NewRequest(http.MethodGet, "/api/speakers", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagation(t *testing.T) {
	h := newTestRouter(t, multiSpeaker(&stubBackend{}), config.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/speakers", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, multiSpeaker(&stubBackend{}), config.ServerConfig{})
	do(t, h, http.MethodGet, "/api/speakers", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ttsd_http_requests_total{code="200",method="GET",route="/api/speakers"} 1`)
}

func TestHandlersWithHumatest(t *testing.T) {
	_, api := humatest.New(t)
	NewHealthHandler(api, service.NewTTS(multiSpeaker(&stubBackend{})))

	resp := api.Get("/api/speakers")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"p225"`)

	resp = api.Get("/health")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHumaNewErrorOverride(t *testing.T) {
	err := huma.NewError(http.StatusUnprocessableEntity, "validation failed", errors.New("text: expected string"))

	var detail *DetailError
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, http.StatusUnprocessableEntity, detail.GetStatus())
	assert.Equal(t, "validation failed: text: expected string", detail.Detail)

	err = huma.NewError(http.StatusInternalServerError, "unexpected failure")

	var record *ErrorRecord
	require.ErrorAs(t, err, &record)
	assert.Equal(t, http.StatusInternalServerError, record.GetStatus())
	assert.Equal(t, "unexpected failure", record.ErrorMessage)
	assert.Regexp(t, `^\d{8}_\d{6}$`, record.ErrorID)
}
