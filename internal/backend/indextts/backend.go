// Package indextts drives the IndexTTS command line engine.
package indextts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/ekisa-team/indextts-api/internal/backend"
	"github.com/ekisa-team/indextts-api/internal/mapsafe"
)

const (
	// DefaultBinary is the console script installed by the indextts package.
	DefaultBinary = "indextts"

	// ConfigFilename is the model config expected inside the model directory.
	ConfigFilename = "config.yaml"

	contentTypeWAV  = "audio/wav"
	maxDiagnostic   = 2048
	dirPermissions  = 0o750
	timestampLayout = "20060102150405.000000"
)

// Backend implements backend.Backend for IndexTTS.
type Backend struct {
	executor  *backend.Executor
	modelDir  string
	device    string
	outputDir string
	fp16      bool
}

// New is the backend.Factory for IndexTTS. It checks the model directory and
// the engine binary so that a broken installation fails at load time.
func New(_ context.Context, opts backend.Options) (backend.Backend, error) {
	binary := opts.BinaryPath
	if binary == "" {
		binary = DefaultBinary
	}

	executor, err := backend.NewExecutor(binary, opts.Timeout)
	if err != nil {
		return nil, err
	}

	return NewWithExecutor(opts, executor)
}

// NewWithExecutor creates a backend around an existing executor.
func NewWithExecutor(opts backend.Options, executor *backend.Executor) (*Backend, error) {
	if err := checkModelDir(opts.ModelDir); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutputDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("indextts: failed to create output dir %s: %w", opts.OutputDir, err)
	}

	device := opts.Device
	if device == "" {
		device = "cpu"
	}

	b := &Backend{
		executor:  executor,
		modelDir:  opts.ModelDir,
		device:    device,
		outputDir: opts.OutputDir,
		fp16:      mapsafe.Get(opts.Parameters, "fp16", strings.HasPrefix(device, "cuda")),
	}

	slog.Info("IndexTTS backend ready",
		"model_dir", b.modelDir,
		"device", b.device,
		"fp16", b.fp16,
		"binary", executor.BinaryPath(),
	)

	return b, nil
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderIndexTTS
}

// Infer synthesizes speech from text using the reference audio as voice prompt.
// IndexTTS only writes to a file, so the output is read back and removed.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	start := time.Now()
	outputFile := filepath.Join(b.outputDir, outputName(start))
	defer func() {
		if err := os.Remove(outputFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove engine output", "path", outputFile, "error", err)
		}
	}()

	args := b.buildArgs(req, outputFile)

	stdout, stderr, err := b.executor.Execute(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w\nstderr: %s", err, tail(stderr))
	}

	audioData, err := os.ReadFile(outputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w\nstderr: %s", err, tail(stderr))
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("engine produced an empty file\nstderr: %s", tail(stderr))
	}

	elapsed := time.Since(start)
	slog.Debug("IndexTTS inference finished",
		"elapsed", elapsed,
		"output", humanize.IBytes(uint64(len(audioData))),
	)

	return &backend.Response{
		Audio:       audioData,
		ContentType: contentTypeWAV,
		Metadata: &backend.ResponseMetadata{
			Provider:    b.Provider(),
			Model:       b.modelDir,
			Device:      b.device,
			Timestamp:   time.Now(),
			Elapsed:     elapsed,
			OutputBytes: int64(len(audioData)),
			BackendSpecific: map[string]any{
				"stdout":         tail(stdout),
				"args":           args,
				"reference_text": req.ReferenceText,
			},
		},
	}, nil
}

// Close cleans up resources. The CLI keeps no resident state.
func (b *Backend) Close() error {
	return nil
}

// buildArgs builds IndexTTS command-line arguments. The text goes last after
// "--" so that text starting with a dash is not read as a flag.
func (b *Backend) buildArgs(req *backend.Request, outputFile string) []string {
	args := []string{
		"--voice", req.ReferenceAudioPath,
		"--output_path", outputFile,
		"--config", filepath.Join(b.modelDir, ConfigFilename),
		"--model_dir", b.modelDir,
		"--device", b.device,
		"--force",
	}

	if b.fp16 {
		args = append(args, "--fp16")
	}

	return append(args, "--", req.Text)
}

func checkModelDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", backend.ErrInvalidModelDir, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", backend.ErrInvalidModelDir, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, ConfigFilename)); err != nil {
		return fmt.Errorf("%w: missing %s in %s", backend.ErrInvalidModelDir, ConfigFilename, dir)
	}

	return nil
}

func outputName(t time.Time) string {
	stamp := strings.Replace(t.Format(timestampLayout), ".", "_", 1)
	return fmt.Sprintf("tts_output_%s_%s.wav", stamp, uuid.NewString()[:8])
}

// tail keeps the end of engine output, where Python puts the exception.
func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxDiagnostic {
		s = "..." + s[len(s)-maxDiagnostic:]
	}
	return s
}
