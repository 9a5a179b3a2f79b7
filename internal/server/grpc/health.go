// Package grpc exposes the standard gRPC health protocol for orchestrators
// that probe over gRPC instead of HTTP.
package grpc

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ekisa-team/indextts-api/internal/model"
)

// ServiceName is the name probes pass in HealthCheckRequest.
const ServiceName = "indextts"

// Health tracks model readiness in a grpc health server.
type Health struct {
	srv *health.Server
}

// NewHealth creates a Health reporting NOT_SERVING until the model is ready.
func NewHealth() *Health {
	h := &Health{srv: health.NewServer()}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)

	return h
}

// Observe is a model.Observer keeping the serving status in step with the model.
func (h *Health) Observe(s model.Snapshot) {
	if s.Ready() {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}

// Server returns the health service implementation.
func (h *Health) Server() healthpb.HealthServer {
	return h.srv
}

// NewServer returns a grpc.Server with the health service registered.
func NewServer(h *Health, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.srv)

	return s
}

func (h *Health) set(status healthpb.HealthCheckResponse_ServingStatus) {
	slog.Debug("gRPC health status", "service", ServiceName, "status", status.String())

	h.srv.SetServingStatus(ServiceName, status)
	h.srv.SetServingStatus("", status)
}
