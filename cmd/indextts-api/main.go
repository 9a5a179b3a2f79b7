package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/indextts-api/internal/backend"
	"github.com/ekisa-team/indextts-api/internal/backend/indextts"
	"github.com/ekisa-team/indextts-api/internal/config"
	"github.com/ekisa-team/indextts-api/internal/config/source"
	"github.com/ekisa-team/indextts-api/internal/env"
	"github.com/ekisa-team/indextts-api/internal/idempotency"
	"github.com/ekisa-team/indextts-api/internal/logger"
	"github.com/ekisa-team/indextts-api/internal/model"
	grpcserver "github.com/ekisa-team/indextts-api/internal/server/grpc"
	httpserver "github.com/ekisa-team/indextts-api/internal/server/http"
	"github.com/ekisa-team/indextts-api/internal/service"
	"github.com/ekisa-team/indextts-api/internal/tempfile"
	"github.com/ekisa-team/indextts-api/internal/xfs"
)

const (
	apiTitle        = "IndexTTS API"
	shutdownTimeout = 30 * time.Second
	promptsSubdir   = "prompts"
	engineSubdir    = "engine"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("indextts-api exited", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader, err := config.NewLoader(args, os.LookupEnv)
	if err != nil {
		if config.IsHelp(err) {
			return nil
		}
		return err
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	lvl, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	level.Set(lvl)

	slog.SetDefault(
		logger.New(env.FromEnv(),
			logger.WithLevel(level),
			logger.WithLogToFile(cfg.Log.File != ""),
			logger.WithLogFile(cfg.Log.File),
		),
	)

	device, err := model.ResolveDevice(cfg.Model.Device, cfg.Model.DeviceID)
	if err != nil {
		return err
	}

	registry := backend.NewRegistry()
	if err := registry.Register(backend.BackendProviderIndexTTS, indextts.New); err != nil {
		return err
	}
	slog.Info("Backends registered", "providers", registry.Providers())

	health := grpcserver.NewHealth()
	models := model.NewManager(
		model.Spec{ModelDir: cfg.Model.Dir, Device: device, Provider: cfg.Engine.Provider},
		modelLoader(cfg, registry),
		model.WithObserver(health.Observe),
	)
	defer func() {
		if err := models.Close(); err != nil {
			slog.Warn("Failed to close model", "error", err)
		}
	}()

	temps, err := tempfile.NewManager(
		filepath.Join(cfg.Storage.OutputDir, promptsSubdir),
		tempfile.WithMaxBytes(cfg.Limits.MaxUploadBytes),
	)
	if err != nil {
		return err
	}
	if _, err := temps.Sweep(); err != nil {
		slog.Warn("Failed to sweep stale prompt files", "dir", temps.Dir(), "error", err)
	}

	if !xfs.Exists(cfg.Storage.DefaultReference) {
		slog.Warn("Default reference audio not found, /tts/create without prompt_audio will fail",
			"path", cfg.Storage.DefaultReference)
	}

	cache := idempotency.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	gateway := service.NewTTS(models, service.Options{
		QueueSize:            cfg.Limits.QueueSize,
		MaxTextLength:        cfg.Limits.MaxTextLength,
		MinReferenceDuration: cfg.Limits.MinReferenceDuration,
	})
	defer gateway.Close()

	mux := http.NewServeMux()
	api := httpserver.NewAPI(mux, apiTitle, version)
	httpserver.NewHealthHandler(api, models, gateway, cache)
	httpserver.NewTTSHandler(api, httpserver.TTSConfig{
		Service:          gateway,
		Models:           models,
		Cache:            cache,
		Temps:            temps,
		DefaultReference: cfg.Storage.DefaultReference,
		MaxUploadBytes:   cfg.Limits.MaxUploadBytes,
		LazyLoad:         cfg.Model.LazyLoad,
	})

	if loader.Path() != "" {
		watcher, err := config.NewWatcher(loader, func(c *config.Config, err error) {
			if err != nil {
				return
			}
			cache.Resize(c.Cache.MaxEntries, c.Cache.TTL)
			if lvl, err := logger.ParseLevel(c.Log.Level); err == nil {
				level.Set(lvl)
			}
		})
		if err != nil {
			slog.Warn("Config hot reload disabled", "path", loader.Path(), "error", err)
		} else {
			defer watcher.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	srv := httpserver.NewServer(cfg.Addr(), mux)
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", cfg.Addr(), "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if addr := cfg.GRPCAddr(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("grpc listen: %w", err)
		}

		gs := grpcserver.NewServer(health)
		g.Go(func() error {
			slog.Info("gRPC health server listening", "addr", addr)
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			health.Shutdown()
			gs.GracefulStop()
			return nil
		})
	}

	if cfg.Model.LazyLoad {
		slog.Info("Lazy loading enabled, model loads on first synthesis request")
	} else {
		g.Go(func() error {
			if _, err := models.Initialize(gctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Model unavailable, synthesis requests will be rejected", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()

	st := cache.Stats()
	slog.Info("Idempotency cache stats",
		"entries", st.Entries,
		"hits", st.Hits,
		"joins", st.Joins,
		"computes", st.Computes,
		"failures", st.Failures,
		"evictions", st.Evictions,
	)

	return err
}

// modelLoader builds the backend for spec, fetching the checkpoints first
// when a remote source is configured and they are not on disk.
func modelLoader(cfg *config.Config, registry *backend.Registry) model.Loader {
	return func(ctx context.Context, spec model.Spec) (backend.Backend, error) {
		if src, ok := cfg.Model.GetSource().(config.HuggingFaceSource); ok &&
			!xfs.Exists(filepath.Join(spec.ModelDir, indextts.ConfigFilename)) {
			d := &source.HuggingFaceDownloader{}
			if _, err := d.Download(ctx, src, spec.ModelDir); err != nil {
				return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
			}
		}

		factory, err := registry.Get(backend.BackendProvider(spec.Provider))
		if err != nil {
			return nil, err
		}

		params := map[string]any{}
		if cfg.Engine.FP16 != nil {
			params["fp16"] = *cfg.Engine.FP16
		}

		return factory(ctx, backend.Options{
			ModelDir:   spec.ModelDir,
			Device:     spec.Device,
			OutputDir:  filepath.Join(cfg.Storage.OutputDir, engineSubdir),
			BinaryPath: cfg.Engine.Binary,
			Timeout:    cfg.Engine.Timeout,
			Parameters: params,
		})
	}
}
