package config

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloads struct {
	mu   sync.Mutex
	cfgs []*Config
	errs []error
}

func (r *reloads) record(cfg *Config, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.cfgs = append(r.cfgs, cfg)
}

func (r *reloads) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.cfgs), len(r.errs)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	isolateHome(t)
	path := writeConfig(t, "cache:\n  max_entries: 5\n")

	l, err := NewLoader([]string{"--config", path}, env(nil))
	require.NoError(t, err)

	var got reloads
	w, err := NewWatcher(l, got.record)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, 5, w.Snapshot().Cache.MaxEntries)

	require.NoError(t, os.WriteFile(path, []byte("cache:\n  max_entries: 9\nlog:\n  level: debug\n"), 0o600))

	require.Eventually(t, func() bool {
		n, _ := got.counts()
		return n > 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 9, w.Snapshot().Cache.MaxEntries)
	assert.Equal(t, "debug", w.Snapshot().Log.Level)
	assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
}

func TestWatcher_KeepsLastGoodConfig(t *testing.T) {
	isolateHome(t)
	path := writeConfig(t, "cache:\n  max_entries: 5\n")

	l, err := NewLoader([]string{"--config", path}, env(nil))
	require.NoError(t, err)

	var got reloads
	w, err := NewWatcher(l, got.record)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("cache:\n  max_entries: -1\n"), 0o600))

	require.Eventually(t, func() bool {
		_, n := got.counts()
		return n > 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 5, w.Snapshot().Cache.MaxEntries)
}

func TestNewWatcher_RequiresFile(t *testing.T) {
	isolateHome(t)

	l, err := NewLoader(nil, env(nil))
	require.NoError(t, err)

	_, err = NewWatcher(l, func(*Config, error) {})
	assert.Error(t, err)
}
