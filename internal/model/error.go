package model

import "errors"

// Error definitions for the model package.
var (
	ErrNotFound        = errors.New("model not found in registry")
	ErrNotAssigned     = errors.New("model is not assigned to service")
	ErrNoModelAssigned = errors.New("no model assigned to service")
	ErrBackendMissing  = errors.New("backend for model is not registered")
	ErrNoConfigLoaded  = errors.New("no config loaded")
)
