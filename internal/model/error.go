package model

import "errors"

// Error definitions for the model package.
var (
	// ErrNotReady means the model has not finished loading. Clients may retry later.
	ErrNotReady = errors.New("model not loaded yet")

	// ErrUnavailable means loading failed. The failure is sticky until restart.
	ErrUnavailable = errors.New("model unavailable")
)
