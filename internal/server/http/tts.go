package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/ttsd/internal/audio"
	"github.com/ekisa-team/ttsd/internal/service"
)

// AttachmentDisposition is sent with every synthesized file.
const AttachmentDisposition = "attachment; filename=tts_output.wav"

// Details returned for handled errors.
const (
	DetailTextRequired     = "Text parameter is required"
	DetailModelUnavailable = "TTS model is not available. Please check server logs for initialization errors."
	DetailBarkUnavailable  = "Bark pipeline is not available. Please check server logs for initialization errors."
)

type (
	TTSRequestDTO struct {
		_          struct{} `json:"-"                     additionalProperties:"true"`
		Text       string   `json:"text,omitempty"        doc:"Text to synthesize"`
		SpeakerID  string   `json:"speaker_id,omitempty"  doc:"Speaker name from /api/speakers; defaults to the first speaker"`
		LanguageID string   `json:"language_id,omitempty" doc:"Accepted for compatibility, ignored"`
		ModelID    string   `json:"model_id,omitempty"    doc:"TTS model id; defaults to the first configured model"`
	}

	BarkRequestDTO struct {
		_    struct{} `json:"-"              additionalProperties:"true"`
		Text string   `json:"text,omitempty" doc:"Text to synthesize"`
	}
)

type (
	TTSGetInput struct {
		Text       string `query:"text"        doc:"Text to synthesize"`
		SpeakerID  string `query:"speaker_id"  doc:"Speaker name from /api/speakers; defaults to the first speaker"`
		LanguageID string `query:"language_id" doc:"Accepted for compatibility, ignored"`
		ModelID    string `query:"model_id"    doc:"TTS model id; defaults to the first configured model"`
	}

	TTSPostInput struct {
		Text       string         `query:"text"`
		SpeakerID  string         `query:"speaker_id"`
		LanguageID string         `query:"language_id"`
		ModelID    string         `query:"model_id"`
		Body       *TTSRequestDTO `required:"false"`
	}

	BarkInput struct {
		Body BarkRequestDTO
	}

	AudioOutput struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		ModelID            string `header:"X-Model-ID"`
		SpeakerID          string `header:"X-Speaker-ID"`
		AudioKey           string `header:"X-Audio-Key"`
		Body               []byte
	}
)

// toRequest merges body values over query values.
func (in *TTSPostInput) toRequest() service.SynthesisRequest {
	req := service.SynthesisRequest{
		Text:       in.Text,
		SpeakerID:  in.SpeakerID,
		LanguageID: in.LanguageID,
		ModelID:    in.ModelID,
	}
	if b := in.Body; b != nil {
		if b.Text != "" {
			req.Text = b.Text
		}
		if b.SpeakerID != "" {
			req.SpeakerID = b.SpeakerID
		}
		if b.LanguageID != "" {
			req.LanguageID = b.LanguageID
		}
		if b.ModelID != "" {
			req.ModelID = b.ModelID
		}
	}
	return req
}

func audioResponses() map[string]*huma.Response {
	return map[string]*huma.Response{
		"200": {
			Description: "Synthesized speech",
			Content: map[string]*huma.MediaType{
				audio.ContentTypeWAV: {Schema: &huma.Schema{Type: huma.TypeString, Format: "binary"}},
			},
		},
	}
}

// TTSHandler handles HTTP requests for TTS.
type TTSHandler struct {
	service *service.TTS
	bark    *service.Bark
}

// NewTTSHandler creates a new TTSHandler instance and registers its operations.
// bark may be nil, in which case the bark operation answers 500.
func NewTTSHandler(api huma.API, tts *service.TTS, bark *service.Bark) *TTSHandler {
	h := &TTSHandler{service: tts, bark: bark}

	huma.Register(api, huma.Operation{
		OperationID:   "tts-get",
		Method:        http.MethodGet,
		Path:          "/api/tts",
		Summary:       "Synthesize speech from query parameters",
		Tags:          []string{"tts"},
		DefaultStatus: http.StatusOK,
		Responses:     audioResponses(),
	}, h.handleGet)

	huma.Register(api, huma.Operation{
		OperationID:   "tts-post",
		Method:        http.MethodPost,
		Path:          "/api/tts",
		Summary:       "Synthesize speech from a JSON body",
		Tags:          []string{"tts"},
		DefaultStatus: http.StatusOK,
		Responses:     audioResponses(),
	}, h.handlePost)

	huma.Register(api, huma.Operation{
		OperationID:   "tts-bark",
		Method:        http.MethodPost,
		Path:          "/api/tts/bark",
		Summary:       "Synthesize speech through the bark pipeline",
		Tags:          []string{"tts"},
		DefaultStatus: http.StatusOK,
		Responses:     audioResponses(),
	}, h.handleBark)

	return h
}

// handleGet handles the tts-get operation.
func (h *TTSHandler) handleGet(ctx context.Context, input *TTSGetInput) (*AudioOutput, error) {
	return h.synthesize(ctx, service.SynthesisRequest{
		Text:       input.Text,
		SpeakerID:  input.SpeakerID,
		LanguageID: input.LanguageID,
		ModelID:    input.ModelID,
	})
}

// handlePost handles the tts-post operation.
func (h *TTSHandler) handlePost(ctx context.Context, input *TTSPostInput) (*AudioOutput, error) {
	return h.synthesize(ctx, input.toRequest())
}

func (h *TTSHandler) synthesize(ctx context.Context, req service.SynthesisRequest) (*AudioOutput, error) {
	res, err := h.service.Synthesize(ctx, req)
	if err != nil {
		return nil, synthesisError(err, http.StatusServiceUnavailable, DetailModelUnavailable)
	}
	return audioOutput(res), nil
}

// handleBark handles the tts-bark operation.
func (h *TTSHandler) handleBark(ctx context.Context, input *BarkInput) (*AudioOutput, error) {
	if h.bark == nil {
		return nil, &DetailError{Status: http.StatusInternalServerError, Detail: DetailBarkUnavailable}
	}

	res, err := h.bark.Synthesize(ctx, input.Body.Text)
	if err != nil {
		return nil, synthesisError(err, http.StatusInternalServerError, DetailBarkUnavailable)
	}
	return audioOutput(res), nil
}

// synthesisError maps service errors onto response shapes.
func synthesisError(err error, unavailableStatus int, unavailableDetail string) error {
	var invalid *service.InvalidSpeakerError

	switch {
	case errors.Is(err, service.ErrTextRequired):
		return &DetailError{Status: http.StatusBadRequest, Detail: DetailTextRequired}
	case errors.As(err, &invalid):
		return &DetailError{
			Status: http.StatusBadRequest,
			Detail: fmt.Sprintf("Invalid speaker_id. Valid options: %v...", invalid.Valid),
		}
	case errors.Is(err, service.ErrModelUnavailable):
		return &DetailError{Status: unavailableStatus, Detail: unavailableDetail}
	}

	return NewErrorRecord(err)
}

func audioOutput(res *service.SynthesisResult) *AudioOutput {
	return &AudioOutput{
		ContentType:        audio.ContentTypeWAV,
		ContentDisposition: AttachmentDisposition,
		ModelID:            res.Model,
		SpeakerID:          res.Speaker,
		AudioKey:           res.ArchiveKey,
		Body:               res.Audio,
	}
}
