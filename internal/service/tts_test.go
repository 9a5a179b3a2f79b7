package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/indextts-api/internal/audio/audiotest"
	"github.com/ekisa-team/indextts-api/internal/backend"
	"github.com/ekisa-team/indextts-api/internal/backend/backendtest"
	"github.com/ekisa-team/indextts-api/internal/model"
)

func newGateway(t *testing.T, fake *backendtest.Fake) (*TTS, string) {
	t.Helper()

	ref := audiotest.WriteWAV(t, t.TempDir(), "ref.wav", time.Second)
	s := NewTTS(backendtest.Models{B: fake}, Options{MaxTextLength: 20})
	t.Cleanup(s.Close)

	return s, ref
}

func TestSynthesize_ReturnsAudio(t *testing.T) {
	fake := &backendtest.Fake{}
	s, ref := newGateway(t, fake)

	out, err := s.Synthesize(context.Background(), &Job{Text: "  hello  ", ReferencePath: ref, ReferenceText: "prompt"})
	require.NoError(t, err)
	assert.Equal(t, backendtest.Audio("hello"), out)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hello", calls[0].Request.Text)
	assert.Equal(t, ref, calls[0].Request.ReferenceAudioPath)
	assert.Equal(t, "prompt", calls[0].Request.ReferenceText)
}

func TestSynthesize_InvalidInputIsNotQueued(t *testing.T) {
	fake := &backendtest.Fake{}
	s, ref := newGateway(t, fake)

	dir := t.TempDir()
	short := audiotest.WriteWAV(t, dir, "short.wav", 100*time.Millisecond)
	blip := audiotest.WriteWAV(t, dir, "blip.wav", 10*time.Millisecond)
	headerOnly := audiotest.WriteWAV(t, dir, "header-only.wav", 0)
	garbage := dir + "/garbage.wav"
	require.NoError(t, writeFile(garbage, []byte("definitely not audio")))
	seven := 7

	tests := []struct {
		name string
		job  *Job
	}{
		{"nil job", nil},
		{"empty text", &Job{Text: "", ReferencePath: ref}},
		{"blank text", &Job{Text: " \n\t ", ReferencePath: ref}},
		{"text too long", &Job{Text: strings.Repeat("語", 21), ReferencePath: ref}},
		{"missing reference", &Job{Text: "hi"}},
		{"short reference", &Job{Text: "hi", ReferencePath: short}},
		{"10ms reference", &Job{Text: "hi", ReferencePath: blip}},
		{"header-only reference", &Job{Text: "hi", ReferencePath: headerOnly}},
		{"undecodable reference", &Job{Text: "hi", ReferencePath: garbage}},
		{"bad gender", &Job{Text: "hi", ReferencePath: ref, Hints: VoiceHints{Gender: "robot"}}},
		{"bad pitch", &Job{Text: "hi", ReferencePath: ref, Hints: VoiceHints{Pitch: &seven}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Synthesize(context.Background(), tt.job)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	assert.Empty(t, fake.Calls())
}

func TestNewTTS_DefaultsZeroOptions(t *testing.T) {
	s := NewTTS(backendtest.Models{B: &backendtest.Fake{}}, Options{})
	t.Cleanup(s.Close)

	assert.Equal(t, DefaultQueueSize, s.opts.QueueSize)
	assert.Equal(t, DefaultMaxTextLength, s.opts.MaxTextLength)
	assert.Equal(t, DefaultMinReferenceDuration, s.opts.MinReferenceDuration)
}

func TestSynthesize_HeaderOnlyReferenceRejectedWithAnyMinimum(t *testing.T) {
	fake := &backendtest.Fake{}
	s := NewTTS(backendtest.Models{B: fake}, Options{MinReferenceDuration: time.Nanosecond})
	t.Cleanup(s.Close)

	ref := audiotest.WriteWAV(t, t.TempDir(), "header-only.wav", 0)
	_, err := s.Synthesize(context.Background(), &Job{Text: "hi", ReferencePath: ref})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, fake.Calls())
}

func TestSynthesize_TextAtLimitIsAccepted(t *testing.T) {
	fake := &backendtest.Fake{}
	s, ref := newGateway(t, fake)

	_, err := s.Synthesize(context.Background(), &Job{Text: strings.Repeat("語", 20), ReferencePath: ref})
	assert.NoError(t, err)
}

func TestSynthesize_ModelNotReady(t *testing.T) {
	ref := audiotest.WriteWAV(t, t.TempDir(), "ref.wav", time.Second)

	for _, want := range []error{model.ErrNotReady, model.ErrUnavailable} {
		s := NewTTS(backendtest.Models{Err: want}, Options{})
		_, err := s.Synthesize(context.Background(), &Job{Text: "hi", ReferencePath: ref})
		assert.ErrorIs(t, err, want)
		assert.Zero(t, s.QueueDepth())
		s.Close()
	}
}

func TestSynthesize_NeverOverlaps(t *testing.T) {
	fake := &backendtest.Fake{
		InferFunc: func(ctx context.Context, req *backend.Request) (*backend.Response, error) {
			time.Sleep(5 * time.Millisecond)
			return &backend.Response{Audio: backendtest.Audio(req.Text)}, nil
		},
	}
	s, ref := newGateway(t, fake)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Synthesize(context.Background(), &Job{Text: fmt.Sprintf("job %d", i), ReferencePath: ref})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	calls := fake.Calls()
	require.Len(t, calls, n)
	assert.Equal(t, 1, fake.Peak())
	for i := 1; i < len(calls); i++ {
		assert.False(t, calls[i].Start.Before(calls[i-1].End), "call %d started before call %d ended", i, i-1)
	}
}

// blocker holds the first inference until released and records the order
// in which texts reach the engine.
type blocker struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	order   []string
}

func newBlocker() *blocker {
	return &blocker{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blocker) infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	b.mu.Lock()
	b.order = append(b.order, req.Text)
	first := len(b.order) == 1
	b.mu.Unlock()

	if first {
		b.once.Do(func() { close(b.started) })
		<-b.release
	}
	return &backend.Response{Audio: backendtest.Audio(req.Text)}, nil
}

func (b *blocker) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.order...)
}

func TestSynthesize_FIFO(t *testing.T) {
	b := newBlocker()
	s, ref := newGateway(t, &backendtest.Fake{InferFunc: b.infer})

	var wg sync.WaitGroup
	submit := func(text string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Synthesize(context.Background(), &Job{Text: text, ReferencePath: ref})
			assert.NoError(t, err)
		}()
	}

	submit("first")
	<-b.started

	want := []string{"first"}
	for i := 1; i <= 4; i++ {
		text := fmt.Sprintf("queued %d", i)
		want = append(want, text)
		submit(text)
		require.Eventually(t, func() bool { return s.QueueDepth() == i }, time.Second, time.Millisecond)
	}

	close(b.release)
	wg.Wait()

	assert.Equal(t, want, b.seen())
}

func TestSynthesize_CanceledWhileQueuedIsSkipped(t *testing.T) {
	b := newBlocker()
	s, ref := newGateway(t, &backendtest.Fake{InferFunc: b.infer})

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Synthesize(context.Background(), &Job{Text: "first", ReferencePath: ref})
		firstDone <- err
	}()
	<-b.started

	ctx, cancel := context.WithCancel(context.Background())
	queuedDone := make(chan error, 1)
	go func() {
		_, err := s.Synthesize(ctx, &Job{Text: "abandoned", ReferencePath: ref})
		queuedDone <- err
	}()
	require.Eventually(t, func() bool { return s.QueueDepth() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-queuedDone, context.Canceled)

	close(b.release)
	require.NoError(t, <-firstDone)

	_, err := s.Synthesize(context.Background(), &Job{Text: "last", ReferencePath: ref})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "last"}, b.seen())
}

func TestSynthesize_CancelAfterDispatchWaitsForCompletion(t *testing.T) {
	b := newBlocker()
	s, ref := newGateway(t, &backendtest.Fake{InferFunc: b.infer})

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.Synthesize(ctx, &Job{Text: "running", ReferencePath: ref})
		done <- result{out, err}
	}()

	<-b.started
	cancel()

	select {
	case <-done:
		t.Fatal("Synthesize returned while inference was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(b.release)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, backendtest.Audio("running"), r.out)
}

func TestSynthesize_InferenceFailure(t *testing.T) {
	fail := true
	var mu sync.Mutex
	fake := &backendtest.Fake{
		InferFunc: func(ctx context.Context, req *backend.Request) (*backend.Response, error) {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				fail = false
				return nil, errors.New("CUDA out of memory")
			}
			return &backend.Response{Audio: backendtest.Audio(req.Text)}, nil
		},
	}
	s, ref := newGateway(t, fake)

	_, err := s.Synthesize(context.Background(), &Job{Text: "hi", ReferencePath: ref})
	require.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), "CUDA out of memory")
	assert.Len(t, fake.Calls(), 1)

	out, err := s.Synthesize(context.Background(), &Job{Text: "hi", ReferencePath: ref})
	require.NoError(t, err)
	assert.Equal(t, backendtest.Audio("hi"), out)
}

func TestSynthesize_EmptyOutputIsInferenceFailure(t *testing.T) {
	fake := &backendtest.Fake{
		InferFunc: func(ctx context.Context, req *backend.Request) (*backend.Response, error) {
			return &backend.Response{}, nil
		},
	}
	s, ref := newGateway(t, fake)

	_, err := s.Synthesize(context.Background(), &Job{Text: "hi", ReferencePath: ref})
	assert.ErrorIs(t, err, ErrInference)
}

func TestSynthesize_EnginePanicIsInternal(t *testing.T) {
	fake := &backendtest.Fake{
		InferFunc: func(ctx context.Context, req *backend.Request) (*backend.Response, error) {
			panic("boom")
		},
	}
	s, ref := newGateway(t, fake)

	_, err := s.Synthesize(context.Background(), &Job{Text: "hi", ReferencePath: ref})
	assert.ErrorIs(t, err, ErrInternal)

	// The worker survives.
	fake.InferFunc = nil
	_, err = s.Synthesize(context.Background(), &Job{Text: "hi", ReferencePath: ref})
	assert.NoError(t, err)
}

func TestClose(t *testing.T) {
	fake := &backendtest.Fake{}
	s, ref := newGateway(t, fake)

	s.Close()
	s.Close()

	_, err := s.Synthesize(context.Background(), &Job{Text: "hi", ReferencePath: ref})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, fake.Calls())
}
