// Package backendtest provides a scripted Backend for tests.
package backendtest

import (
	"context"
	"sync"
	"time"

	"github.com/ekisa-team/indextts-api/internal/backend"
)

// Call records one Infer invocation.
type Call struct {
	Request *backend.Request
	Start   time.Time
	End     time.Time
}

// Fake is a Backend whose Infer runs InferFunc, or returns a fixed WAV-ish
// payload derived from the text when InferFunc is nil.
type Fake struct {
	InferFunc func(ctx context.Context, req *backend.Request) (*backend.Response, error)

	mu     sync.Mutex
	calls  []Call
	active int
	peak   int
	closed bool
}

func (f *Fake) Provider() backend.BackendProvider {
	return backend.BackendProviderIndexTTS
}

func (f *Fake) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	start := time.Now()
	defer func() {
		f.mu.Lock()
		f.active--
		f.calls = append(f.calls, Call{Request: req, Start: start, End: time.Now()})
		f.mu.Unlock()
	}()

	if f.InferFunc != nil {
		return f.InferFunc(ctx, req)
	}
	return &backend.Response{Audio: Audio(req.Text), ContentType: "audio/wav"}, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

// Calls returns the completed invocations in completion order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Call(nil), f.calls...)
}

// Peak is the highest number of concurrent Infer calls observed.
func (f *Fake) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.peak
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

// Audio is the default payload for text.
func Audio(text string) []byte {
	return append([]byte("RIFF-fake:"), text...)
}

// Models is a static model source for the gateway.
type Models struct {
	B   backend.Backend
	Err error
}

func (m Models) Backend() (backend.Backend, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.B, nil
}
