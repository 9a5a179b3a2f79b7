package backend

import (
	"context"
	"time"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	BackendProviderIndexTTS BackendProvider = "indextts"
)

// Backend defines the contract the service needs from a loaded TTS engine.
// Implementations are not assumed safe for concurrent Infer calls; callers
// serialize access.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Infer synthesizes speech and returns the complete audio.
	Infer(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// Options are the load-time settings handed to a Factory.
type Options struct {
	// ModelDir is the directory holding the checkpoints and config.yaml.
	ModelDir string

	// Device is the resolved torch device string, e.g. "cuda:0" or "cpu".
	Device string

	// OutputDir is where the engine writes its audio before it is read back.
	OutputDir string

	// BinaryPath is the engine executable, looked up on PATH when relative.
	BinaryPath string

	// Timeout bounds a single inference. Zero means no limit.
	Timeout time.Duration

	// Parameters contains backend-specific settings.
	Parameters map[string]any
}

// Factory constructs a loaded backend.
type Factory func(ctx context.Context, opts Options) (Backend, error)

// Request encapsulates all parameters for an inference call.
type Request struct {
	// Text is the text to speak.
	Text string

	// ReferenceAudioPath is the voice prompt the output imitates.
	ReferenceAudioPath string

	// ReferenceText is the transcript of the voice prompt, if known.
	ReferenceText string

	// Parameters contains backend-specific inference parameters.
	Parameters map[string]any
}

// Response contains the result of an inference operation.
type Response struct {
	// Audio is the encoded output, WAV for every current backend.
	Audio []byte

	// ContentType is the MIME type of Audio.
	ContentType string

	// Metadata contains backend-specific information.
	Metadata *ResponseMetadata
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Provider        BackendProvider `json:"provider"`
	Model           string          `json:"model"`
	Device          string          `json:"device"`
	Timestamp       time.Time       `json:"timestamp"`
	Elapsed         time.Duration   `json:"elapsed"`
	OutputBytes     int64           `json:"output_bytes"`
	BackendSpecific map[string]any  `json:"backend_specific"`
}
