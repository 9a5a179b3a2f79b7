package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/indextts-api/internal/idempotency"
	"github.com/ekisa-team/indextts-api/internal/model"
	"github.com/ekisa-team/indextts-api/internal/service"
	"github.com/ekisa-team/indextts-api/internal/tempfile"
)

// StatusClientClosedRequest is reported when the caller went away first.
const StatusClientClosedRequest = 499

// Extra room for the text fields of a multipart body on top of the audio.
const formOverheadBytes = 1 << 20

type (
	// SynthesisForm is the multipart form shared by the create and clone operations.
	SynthesisForm struct {
		PromptAudio    huma.FormFile `form:"prompt_audio" contentType:"audio/*,application/octet-stream"`
		Text           string        `form:"text"`
		Gender         string        `form:"gender"`
		Pitch          string        `form:"pitch"`
		Speed          string        `form:"speed"`
		IdempotencyKey string        `form:"idempotency_key"`
		PromptText     string        `form:"prompt_text"`
	}

	// SynthesisInput is the huma input for the create and clone operations.
	SynthesisInput struct {
		RawBody huma.MultipartFormFiles[SynthesisForm]
	}

	// AudioOutput is the huma output carrying the WAV response.
	AudioOutput struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		CacheStatus        string `header:"X-Idempotency-Cache"`
		Body               []byte
	}
)

// Synthesizer runs one synthesis job.
type Synthesizer interface {
	Synthesize(ctx context.Context, job *service.Job) ([]byte, error)
}

// ModelController reports and drives the model lifecycle.
type ModelController interface {
	Snapshot() model.Snapshot
	Initialize(ctx context.Context) (model.ModelStatus, error)
}

// TTSConfig carries the collaborators of TTSHandler.
type TTSConfig struct {
	Service          Synthesizer
	Models           ModelController
	Cache            *idempotency.Cache
	Temps            *tempfile.Manager
	DefaultReference string
	MaxUploadBytes   int64
	LazyLoad         bool
}

// TTSHandler handles HTTP requests for TTS.
type TTSHandler struct {
	cfg TTSConfig
}

// NewTTSHandler creates a new TTSHandler instance.
func NewTTSHandler(api huma.API, cfg TTSConfig) *TTSHandler {
	h := &TTSHandler{cfg: cfg}

	var maxBody int64
	if cfg.MaxUploadBytes > 0 {
		maxBody = cfg.MaxUploadBytes + formOverheadBytes
	}

	huma.Register(api, huma.Operation{
		OperationID:   "tts-create",
		Method:        http.MethodPost,
		Path:          "/tts/create",
		Summary:       "Synthesize speech with the default or an uploaded voice",
		Tags:          []string{"tts"},
		DefaultStatus: http.StatusOK,
		MaxBodyBytes:  maxBody,
	}, h.handleCreate)

	huma.Register(api, huma.Operation{
		OperationID:   "tts-clone",
		Method:        http.MethodPost,
		Path:          "/tts/clone",
		Summary:       "Synthesize speech in the voice of an uploaded reference",
		Tags:          []string{"tts"},
		DefaultStatus: http.StatusOK,
		MaxBodyBytes:  maxBody,
	}, h.handleClone)

	return h
}

// handleCreate handles the tts-create operation.
func (h *TTSHandler) handleCreate(ctx context.Context, input *SynthesisInput) (*AudioOutput, error) {
	return h.synthesize(ctx, input.RawBody.Data(), false)
}

// handleClone handles the tts-clone operation.
func (h *TTSHandler) handleClone(ctx context.Context, input *SynthesisInput) (*AudioOutput, error) {
	return h.synthesize(ctx, input.RawBody.Data(), true)
}

func (h *TTSHandler) synthesize(ctx context.Context, form *SynthesisForm, requirePrompt bool) (*AudioOutput, error) {
	if err := h.ensureReady(ctx); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(form.Text)
	if text == "" {
		return nil, huma.Error400BadRequest("text is required")
	}

	hints, err := service.ParseVoiceHints(form.Gender, form.Pitch, form.Speed)
	if err != nil {
		return nil, huma.Error400BadRequest(trimSentinel(err))
	}

	// A one-character transcript carries nothing and is treated as absent.
	promptText := strings.TrimSpace(form.PromptText)
	if utf8.RuneCountInString(promptText) <= 1 {
		promptText = ""
	}

	ref, err := h.reference(form.PromptAudio, requirePrompt)
	if err != nil {
		return nil, err
	}
	defer release(ref)

	key := strings.TrimSpace(form.IdempotencyKey)
	job := &service.Job{
		Text:          text,
		ReferencePath: ref.Path(),
		ReferenceText: promptText,
		Hints:         hints,
		Key:           key,
	}

	// A keyed computation may outlive this request, so it holds its own
	// reference to the upload.
	if key != "" {
		if err := ref.Retain(); err != nil {
			return nil, huma.Error500InternalServerError("reference audio is no longer available", err)
		}
	}

	res, err := h.cfg.Cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		if key != "" {
			defer release(ref)
		}
		return h.cfg.Service.Synthesize(ctx, job)
	})
	if key != "" && res.Source != idempotency.SourceComputed {
		release(ref)
	}
	if err != nil {
		return nil, toHTTPError(err)
	}

	return &AudioOutput{
		ContentType:        "audio/wav",
		ContentDisposition: fmt.Sprintf(`attachment; filename="%s"`, outputName(res.CreatedAt)),
		CacheStatus:        string(res.Source),
		Body:               res.Audio,
	}, nil
}

func (h *TTSHandler) ensureReady(ctx context.Context) error {
	snap := h.cfg.Models.Snapshot()
	switch {
	case snap.Ready():
		return nil
	case snap.Status == model.ModelStatusLoadFailed:
		return huma.Error503ServiceUnavailable("model failed to load: " + snap.Error)
	case !h.cfg.LazyLoad:
		return huma.Error503ServiceUnavailable("model is not loaded yet, retry later")
	}

	if _, err := h.cfg.Models.Initialize(ctx); err != nil {
		return toHTTPError(err)
	}
	return nil
}

func (h *TTSHandler) reference(file huma.FormFile, required bool) (*tempfile.Handle, error) {
	if !file.IsSet || (file.Size == 0 && !required) {
		if required {
			return nil, huma.Error400BadRequest("prompt_audio is required")
		}
		return h.cfg.Temps.Shared(h.cfg.DefaultReference), nil
	}

	ref, err := h.cfg.Temps.Acquire(file, file.Filename)
	switch {
	case err == nil:
		return ref, nil
	case errors.Is(err, tempfile.ErrEmpty):
		return nil, huma.Error400BadRequest("prompt_audio is empty", err)
	case errors.Is(err, tempfile.ErrTooLarge):
		return nil, huma.NewError(http.StatusRequestEntityTooLarge, "prompt_audio is too large", err)
	default:
		return nil, huma.Error500InternalServerError("failed to store prompt_audio", err)
	}
}

func release(ref *tempfile.Handle) {
	if err := ref.Release(); err != nil {
		slog.Warn("Failed to release reference audio", "path", ref.Path(), "error", err)
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return huma.Error400BadRequest(trimSentinel(err))
	case errors.Is(err, model.ErrNotReady):
		return huma.Error503ServiceUnavailable("model is not loaded yet, retry later")
	case errors.Is(err, model.ErrUnavailable):
		return huma.Error503ServiceUnavailable("model is unavailable", err)
	case errors.Is(err, service.ErrClosed):
		return huma.Error503ServiceUnavailable("service is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.NewError(StatusClientClosedRequest, "request canceled", err)
	case errors.Is(err, service.ErrInference):
		return huma.Error500InternalServerError("speech synthesis failed", err)
	case errors.Is(err, idempotency.ErrPanicked):
		return huma.Error500InternalServerError("speech synthesis crashed", err)
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}

// trimSentinel drops the "invalid input: " prefix for client-facing messages.
func trimSentinel(err error) string {
	return strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
}

// outputName is the attachment name for audio created at t.
func outputName(t time.Time) string {
	return fmt.Sprintf("tts_output_%d.wav", t.Unix())
}
