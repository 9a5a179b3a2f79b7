// Package tempfile owns the scratch files holding uploaded reference audio.
//
// Every Acquire yields a Handle whose file is deleted exactly once, when the
// last reference to it is released. Handlers defer Release right after
// Acquire so the file goes away on every exit path.
package tempfile

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	filePrefix      = "prompt_"
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Manager creates uniquely named upload files inside a scratch directory.
type Manager struct {
	dir      string
	maxBytes int64
	remove   func(string) error

	acquired atomic.Int64
	released atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxBytes caps the size of a single upload. Zero disables the cap.
func WithMaxBytes(n int64) Option {
	return func(m *Manager) { m.maxBytes = n }
}

// WithRemoveFunc replaces os.Remove, used by tests to observe deletions.
func WithRemoveFunc(fn func(string) error) Option {
	return func(m *Manager) { m.remove = fn }
}

// NewManager creates the scratch directory if needed.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("tempfile: failed to create scratch dir %s: %w", dir, err)
	}

	m := &Manager{dir: dir, remove: os.Remove}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Dir returns the scratch directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Sweep removes upload files left behind by a previous process and returns
// how many were deleted. Call it before serving requests.
func (m *Manager) Sweep() (int, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, filePrefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("tempfile: failed to list scratch dir: %w", err)
	}

	removed := 0
	for _, path := range matches {
		if err := m.remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove stale upload", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("Removed stale uploads", "dir", m.dir, "count", removed)
	}

	return removed, nil
}

// Acquire copies r into a new scratch file. The extension of filename is kept
// so tools that sniff by suffix still work. On any failure the partial file is
// removed and no handle is returned.
func (m *Manager) Acquire(r io.Reader, filename string) (*Handle, error) {
	path := filepath.Join(m.dir, filePrefix+uuid.NewString()+sanitizeExt(filename))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("tempfile: failed to create %s: %w", path, err)
	}

	src := r
	if m.maxBytes > 0 {
		src = io.LimitReader(r, m.maxBytes+1)
	}

	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("tempfile: failed to write upload: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("tempfile: failed to close upload: %w", closeErr)
	case n == 0:
		err = ErrEmpty
	case m.maxBytes > 0 && n > m.maxBytes:
		err = fmt.Errorf("%w: limit %s", ErrTooLarge, humanize.IBytes(uint64(m.maxBytes)))
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Error("Failed to remove partial upload", "path", path, "error", rmErr)
		}
		return nil, err
	}

	m.acquired.Add(1)
	slog.Debug("Upload stored", "path", path, "size", humanize.IBytes(uint64(n)))

	h := &Handle{path: path, manager: m}
	h.refs.Store(1)

	return h, nil
}

// Shared wraps a read-only file that must outlive every request, such as the
// bundled default reference. Releasing it does nothing.
func (m *Manager) Shared(path string) *Handle {
	return &Handle{path: path, shared: true}
}

// Acquired returns the number of successful Acquire calls.
func (m *Manager) Acquired() int64 {
	return m.acquired.Load()
}

// Released returns the number of upload files deleted.
func (m *Manager) Released() int64 {
	return m.released.Load()
}

func (m *Manager) delete(path string) error {
	m.released.Add(1)

	if err := m.remove(path); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to delete temp audio", "path", path, "error", err)
		return fmt.Errorf("tempfile: failed to delete %s: %w", path, err)
	}

	slog.Debug("Temp audio deleted", "path", path)
	return nil
}

// Handle is the ownership token for one upload file.
type Handle struct {
	manager *Manager
	path    string
	shared  bool

	refs atomic.Int32
	once sync.Once
}

// Path returns the file location.
func (h *Handle) Path() string {
	return h.path
}

// Shared reports whether the handle wraps a file that is never deleted.
func (h *Handle) Shared() bool {
	return h.shared
}

// Retain adds a reference for a second owner, e.g. a computation that may
// outlive the request. It fails once the file is gone.
func (h *Handle) Retain() error {
	if h.shared {
		return nil
	}

	for {
		n := h.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops one reference and deletes the file when none are left.
// Extra calls beyond the number of references are ignored.
func (h *Handle) Release() error {
	if h.shared {
		return nil
	}

	for {
		n := h.refs.Load()
		if n <= 0 {
			return nil
		}
		if h.refs.CompareAndSwap(n, n-1) {
			if n-1 > 0 {
				return nil
			}
			break
		}
	}

	var err error
	h.once.Do(func() {
		err = h.manager.delete(h.path)
	})

	return err
}

func sanitizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 {
		return ".bin"
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ".bin"
		}
	}

	return ext
}
