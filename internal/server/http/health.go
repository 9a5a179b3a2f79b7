package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/indextts-api/internal/model"
)

const greeting = "Hello! I am the IndexTTS API service. Nice to meet you!"

type (
	// HelloResponseDTO is the response body for the hello operation.
	HelloResponseDTO struct {
		Message      string            `json:"message"`
		Status       model.ModelStatus `json:"status"`
		Error        string            `json:"error,omitempty"`
		Ready        bool              `json:"ready"`
		QueueDepth   int               `json:"queue_depth"`
		CacheEntries int               `json:"cache_entries"`
	}

	// HelloOutput is the huma output for the hello operation.
	HelloOutput struct {
		Body HelloResponseDTO
	}
)

// StatusReporter exposes the model lifecycle.
type StatusReporter interface {
	Snapshot() model.Snapshot
}

// QueueReporter exposes the number of waiting synthesis jobs.
type QueueReporter interface {
	QueueDepth() int
}

// CacheReporter exposes the number of retained idempotent results.
type CacheReporter interface {
	Len() int
}

// HealthHandler answers liveness probes. It never touches the model.
type HealthHandler struct {
	models StatusReporter
	queue  QueueReporter
	cache  CacheReporter
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(api huma.API, models StatusReporter, queue QueueReporter, cache CacheReporter) *HealthHandler {
	h := &HealthHandler{models: models, queue: queue, cache: cache}

	huma.Register(api, huma.Operation{
		OperationID:   "hello",
		Method:        http.MethodGet,
		Path:          "/hello",
		Summary:       "Greeting and model status",
		Tags:          []string{"health"},
		DefaultStatus: http.StatusOK,
	}, h.handleHello)

	return h
}

// handleHello handles the hello operation.
func (h *HealthHandler) handleHello(_ context.Context, _ *struct{}) (*HelloOutput, error) {
	snap := h.models.Snapshot()

	out := &HelloOutput{
		Body: HelloResponseDTO{
			Message: greeting,
			Status:  snap.Status,
			Ready:   snap.Ready(),
			Error:   snap.Error,
		},
	}
	if h.queue != nil {
		out.Body.QueueDepth = h.queue.QueueDepth()
	}
	if h.cache != nil {
		out.Body.CacheEntries = h.cache.Len()
	}

	return out, nil
}
