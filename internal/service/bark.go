package service

import (
	"context"

	"github.com/ekisa-team/ttsd/internal/model"
)

// Bark synthesizes speech through the secondary transformer pipeline.
type Bark struct {
	models ModelResolver
	opts   options
}

// NewBark creates a new Bark service.
func NewBark(models ModelResolver, opts ...Option) *Bark {
	s := &Bark{models: models}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// Synthesize runs text through the default bark pipeline model.
func (s *Bark) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	instance, err := loadedModel(s.models, model.ServiceBark, "")
	if err != nil {
		return nil, err
	}

	if text == "" {
		return nil, ErrTextRequired
	}

	return run(ctx, instance, text, modelParams(instance), "", s.opts, true)
}
