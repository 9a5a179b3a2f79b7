package audio

import "errors"

// Error definitions for the audio package.
var (
	ErrUnsupportedFormat = errors.New("unsupported or undecodable audio format")
	ErrTooShort          = errors.New("audio is too short")
	ErrEmpty             = errors.New("audio is empty")
)
