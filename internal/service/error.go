package service

import "errors"

// Error definitions for the service package.
var (
	// ErrInvalidInput is a malformed or missing field. Not retryable as is.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInference is a failed model invocation. Retryable, never retried here.
	ErrInference = errors.New("inference failed")

	// ErrInternal is an unexpected failure such as file I/O.
	ErrInternal = errors.New("internal error")

	// ErrClosed is returned once the gateway has been shut down.
	ErrClosed = errors.New("synthesis gateway closed")
)
