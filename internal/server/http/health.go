package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/ttsd/internal/service"
)

// MessageNoSpeakers explains an empty speaker list.
const MessageNoSpeakers = "Current model doesn't support multiple speakers"

type (
	HealthBody struct {
		Status      string `json:"status"                 enum:"healthy,unhealthy"`
		Timestamp   string `json:"timestamp"              format:"date-time"`
		ModelLoaded *bool  `json:"model_loaded,omitempty"`
		Error       string `json:"error,omitempty"`
	}

	HealthOutput struct {
		Status int
		Body   HealthBody
	}

	SpeakersInput struct {
		ModelID string `query:"model_id" doc:"TTS model id; defaults to the first configured model"`
	}

	SpeakersBody struct {
		Speakers []string `json:"speakers"`
		Message  string   `json:"message,omitempty"`
	}

	SpeakersOutput struct {
		Body SpeakersBody
	}
)

// HealthHandler handles the health and speaker listing endpoints.
type HealthHandler struct {
	service *service.TTS
	now     func() time.Time
}

// NewHealthHandler creates a new HealthHandler instance and registers its operations.
func NewHealthHandler(api huma.API, tts *service.TTS) *HealthHandler {
	h := &HealthHandler{service: tts, now: time.Now}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Run a sample synthesis and report the result",
		Tags:        []string{"health"},
		Responses: map[string]*huma.Response{
			"500": {Description: "Sample synthesis failed"},
		},
	}, h.handleHealth)

	huma.Register(api, huma.Operation{
		OperationID: "speakers",
		Method:      http.MethodGet,
		Path:        "/api/speakers",
		Summary:     "List the speakers of the TTS model",
		Tags:        []string{"tts"},
	}, h.handleSpeakers)

	return h
}

// handleHealth handles the health operation.
func (h *HealthHandler) handleHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	if err := h.service.Health(ctx); err != nil {
		return &HealthOutput{
			Status: http.StatusInternalServerError,
			Body: HealthBody{
				Status:    "unhealthy",
				Error:     err.Error(),
				Timestamp: h.timestamp(),
			},
		}, nil
	}

	loaded := true
	return &HealthOutput{
		Status: http.StatusOK,
		Body: HealthBody{
			Status:      "healthy",
			Timestamp:   h.timestamp(),
			ModelLoaded: &loaded,
		},
	}, nil
}

// handleSpeakers handles the speakers operation.
func (h *HealthHandler) handleSpeakers(_ context.Context, input *SpeakersInput) (*SpeakersOutput, error) {
	names, ok, err := h.service.Speakers(input.ModelID)
	if err != nil {
		if errors.Is(err, service.ErrModelUnavailable) {
			return &SpeakersOutput{Body: SpeakersBody{Speakers: []string{}, Message: DetailModelUnavailable}}, nil
		}
		return nil, NewErrorRecord(err)
	}

	if !ok {
		return &SpeakersOutput{Body: SpeakersBody{Speakers: []string{}, Message: MessageNoSpeakers}}, nil
	}

	return &SpeakersOutput{Body: SpeakersBody{Speakers: names}}, nil
}

func (h *HealthHandler) timestamp() string {
	return h.now().Format(time.RFC3339Nano)
}
