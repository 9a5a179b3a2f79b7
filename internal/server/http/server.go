package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// NewAPI mounts a huma API on mux with request logging.
func NewAPI(mux *http.ServeMux, title, version string) huma.API {
	api := humago.New(mux, huma.DefaultConfig(title, version))
	api.UseMiddleware(logRequests)

	return api
}

// NewServer returns an http.Server for handler. Write timeouts are left
// unset since a request may wait for the model as long as inference takes.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}

func logRequests(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	status := ctx.Status()
	attrs := []any{
		"method", ctx.Method(),
		"path", ctx.URL().Path,
		"status", status,
		"elapsed", time.Since(start),
	}
	if op := ctx.Operation(); op != nil {
		attrs = append(attrs, "operation", op.OperationID)
	}

	switch {
	case status >= http.StatusInternalServerError:
		slog.Error("HTTP request", attrs...)
	case status >= http.StatusBadRequest:
		slog.Warn("HTTP request", attrs...)
	default:
		slog.Info("HTTP request", attrs...)
	}
}
