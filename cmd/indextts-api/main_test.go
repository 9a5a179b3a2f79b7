package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/indextts-api/internal/backend"
	"github.com/ekisa-team/indextts-api/internal/backend/backendtest"
	"github.com/ekisa-team/indextts-api/internal/config"
	"github.com/ekisa-team/indextts-api/internal/model"
)

func TestModelLoader_PassesEngineOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.OutputDir = t.TempDir()
	cfg.Engine.Timeout = time.Minute
	fp16 := false
	cfg.Engine.FP16 = &fp16

	var got backend.Options
	registry := backend.NewRegistry()
	require.NoError(t, registry.Register(backend.BackendProviderIndexTTS, func(_ context.Context, opts backend.Options) (backend.Backend, error) {
		got = opts
		return &backendtest.Fake{}, nil
	}))

	spec := model.Spec{ModelDir: "/models/indextts", Device: "cuda:0", Provider: string(backend.BackendProviderIndexTTS)}
	b, err := modelLoader(cfg, registry)(context.Background(), spec)
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, "/models/indextts", got.ModelDir)
	assert.Equal(t, "cuda:0", got.Device)
	assert.Equal(t, filepath.Join(cfg.Storage.OutputDir, engineSubdir), got.OutputDir)
	assert.Equal(t, config.DefaultBinary, got.BinaryPath)
	assert.Equal(t, time.Minute, got.Timeout)
	assert.Equal(t, false, got.Parameters["fp16"])
}

func TestModelLoader_UnknownProvider(t *testing.T) {
	cfg := config.Default()

	_, err := modelLoader(cfg, backend.NewRegistry())(context.Background(), model.Spec{Provider: "piper"})
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestRun_Help(t *testing.T) {
	assert.NoError(t, run([]string{"-h"}))
}
