package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
	ErrBinaryNotFound    = errors.New("backend binary not found")
	ErrInvalidModelDir   = errors.New("invalid model directory")
)
