package service

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	minHintLevel = 1
	maxHintLevel = 5
)

// VoiceHints are the gender/pitch/speed fields of the sibling API. They are
// validated so that clients get the same errors as before, but the engine
// takes its voice from the reference audio and never sees them.
type VoiceHints struct {
	Gender string
	Pitch  *int
	Speed  *int
}

// ParseVoiceHints reads the raw form values. Empty strings mean "not given".
func ParseVoiceHints(gender, pitch, speed string) (VoiceHints, error) {
	h := VoiceHints{Gender: strings.ToLower(strings.TrimSpace(gender))}

	var err error
	if h.Pitch, err = parseLevel("pitch", pitch); err != nil {
		return h, err
	}
	if h.Speed, err = parseLevel("speed", speed); err != nil {
		return h, err
	}

	return h, h.Validate()
}

// Validate checks gender against male/female and levels against 1..5.
func (h VoiceHints) Validate() error {
	if h.Gender != "" && h.Gender != "male" && h.Gender != "female" {
		return fmt.Errorf("%w: invalid gender, choose 'male' or 'female'", ErrInvalidInput)
	}
	if h.Pitch != nil && (*h.Pitch < minHintLevel || *h.Pitch > maxHintLevel) {
		return fmt.Errorf("%w: invalid pitch, choose an integer between 1 and 5", ErrInvalidInput)
	}
	if h.Speed != nil && (*h.Speed < minHintLevel || *h.Speed > maxHintLevel) {
		return fmt.Errorf("%w: invalid speed, choose an integer between 1 and 5", ErrInvalidInput)
	}

	return nil
}

func parseLevel(name, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidInput, name)
	}

	return &v, nil
}
