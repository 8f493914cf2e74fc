package service

import (
	"errors"
	"fmt"
	"strings"
)

// Error definitions for the service package.
var (
	ErrTextRequired     = errors.New("text parameter is required")
	ErrInvalidSpeaker   = errors.New("invalid speaker_id")
	ErrModelUnavailable = errors.New("model is not available")
)

// maxSpeakerHint bounds how many valid speaker ids an InvalidSpeakerError lists.
const maxSpeakerHint = 5

// InvalidSpeakerError reports an unknown speaker together with a sample of valid ones.
type InvalidSpeakerError struct {
	SpeakerID string
	Valid     []string
}

func newInvalidSpeakerError(id string, names []string) *InvalidSpeakerError {
	if len(names) > maxSpeakerHint {
		names = names[:maxSpeakerHint]
	}
	return &InvalidSpeakerError{SpeakerID: id, Valid: names}
}

func (e *InvalidSpeakerError) Error() string {
	return fmt.Sprintf("%s %q, valid options: %s...", ErrInvalidSpeaker, e.SpeakerID, strings.Join(e.Valid, ", "))
}

// Unwrap lets errors.Is match ErrInvalidSpeaker.
func (e *InvalidSpeakerError) Unwrap() error {
	return ErrInvalidSpeaker
}

// IsClientError reports whether err was caused by the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrTextRequired) || errors.Is(err, ErrInvalidSpeaker)
}
