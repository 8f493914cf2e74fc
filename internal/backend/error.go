package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
	ErrModelFileNotFound = errors.New("model file not found")
	ErrEmptyOutput       = errors.New("backend produced no audio")
	ErrNoSpeakers        = errors.New("model has no speaker registry")
)
