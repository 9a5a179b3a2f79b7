package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ekisa-team/indextts-api/internal/backend"
)

// Loader loads the model and returns the backend serving it.
type Loader func(ctx context.Context, spec Spec) (backend.Backend, error)

// Observer is notified after every status transition, outside the lock.
type Observer func(Snapshot)

// Manager owns the single model instance of the process.
//
// unloaded -> loading -> ready
//
//	\-> load_failed (terminal)
type Manager struct {
	loader    Loader
	backend   backend.Backend
	err       error
	done      chan struct{}
	loadedAt  *time.Time
	observers []Observer
	spec      Spec
	status    ModelStatus
	mu        sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver registers fn for status transitions.
func WithObserver(fn Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, fn) }
}

// NewManager creates a Manager in the unloaded state.
func NewManager(spec Spec, loader Loader, opts ...Option) *Manager {
	m := &Manager{
		spec:   spec,
		loader: loader,
		status: ModelStatusUnloaded,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Initialize loads the model once. It returns immediately when the model is
// ready, waits when a load is in progress and starts the load otherwise. The
// load itself is not bound to ctx: a caller giving up does not abort it.
// A failed load is never retried.
func (m *Manager) Initialize(ctx context.Context) (ModelStatus, error) {
	m.mu.Lock()
	start := false
	switch m.status {
	case ModelStatusReady:
		m.mu.Unlock()
		return ModelStatusReady, nil
	case ModelStatusLoadFailed:
		err := m.err
		m.mu.Unlock()
		return ModelStatusLoadFailed, fmt.Errorf("%w: %w", ErrUnavailable, err)
	case ModelStatusUnloaded:
		m.status = ModelStatusLoading
		start = true
	}
	done := m.done
	m.mu.Unlock()

	if start {
		m.notify()
		go m.load(context.WithoutCancel(ctx))
	}

	select {
	case <-ctx.Done():
		return m.Status(), ctx.Err()
	case <-done:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.status == ModelStatusLoadFailed {
		return m.status, fmt.Errorf("%w: %w", ErrUnavailable, m.err)
	}
	return m.status, nil
}

func (m *Manager) load(ctx context.Context) {
	start := time.Now()
	slog.Info("Loading model", "model_dir", m.spec.ModelDir, "device", m.spec.Device, "provider", m.spec.Provider)

	b, err := m.safeLoad(ctx)

	m.mu.Lock()
	if err != nil {
		m.status = ModelStatusLoadFailed
		m.err = err
	} else {
		now := time.Now()
		m.status = ModelStatusReady
		m.backend = b
		m.loadedAt = &now
	}
	close(m.done)
	m.mu.Unlock()

	if err != nil {
		slog.Error("Model load failed", "model_dir", m.spec.ModelDir, "elapsed", time.Since(start), "error", err)
	} else {
		slog.Info("Model loaded", "model_dir", m.spec.ModelDir, "device", m.spec.Device, "elapsed", time.Since(start))
	}

	m.notify()
}

func (m *Manager) safeLoad(ctx context.Context) (b backend.Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model loader panicked: %v", r)
		}
	}()

	b, err = m.loader(ctx, m.spec)
	if err == nil && b == nil {
		err = fmt.Errorf("model loader returned no backend")
	}
	return b, err
}

// Status returns the current status.
func (m *Manager) Status() ModelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.status
}

// Snapshot returns status, error and load time together.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{Spec: m.spec, Status: m.status, LoadedAt: m.loadedAt}
	if m.err != nil {
		s.Error = m.err.Error()
	}
	return s
}

// Backend returns the loaded backend, or ErrNotReady / ErrUnavailable.
func (m *Manager) Backend() (backend.Backend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.status {
	case ModelStatusReady:
		return m.backend, nil
	case ModelStatusLoadFailed:
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, m.err)
	default:
		return nil, ErrNotReady
	}
}

// Close releases the loaded backend.
func (m *Manager) Close() error {
	m.mu.RLock()
	b := m.backend
	m.mu.RUnlock()

	if b == nil {
		return nil
	}
	return b.Close()
}

func (m *Manager) notify() {
	if len(m.observers) == 0 {
		return
	}

	s := m.Snapshot()
	for _, fn := range m.observers {
		fn(s)
	}
}
