package tempfile

import "errors"

// Error definitions for the tempfile package.
var (
	ErrReleased = errors.New("temp audio handle already released")
	ErrEmpty    = errors.New("uploaded file is empty")
	ErrTooLarge = errors.New("uploaded file exceeds the size limit")
)
