// Package service holds the synthesis gateway: the single path through which
// requests reach the model.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/ekisa-team/indextts-api/internal/audio"
	"github.com/ekisa-team/indextts-api/internal/backend"
)

const (
	DefaultQueueSize            = 64
	DefaultMaxTextLength        = 2000
	DefaultMinReferenceDuration = 500 * time.Millisecond
)

// Models hands out the loaded backend. *model.Manager satisfies it.
type Models interface {
	Backend() (backend.Backend, error)
}

// Options configures the gateway.
type Options struct {
	// QueueSize is the number of jobs that may wait before callers block.
	QueueSize int

	// MaxTextLength limits the text in runes.
	MaxTextLength int

	// MinReferenceDuration rejects shorter voice prompts. Zero means
	// DefaultMinReferenceDuration.
	MinReferenceDuration time.Duration
}

// Job is one synthesis request.
type Job struct {
	Text          string
	ReferencePath string
	ReferenceText string
	Hints         VoiceHints

	// Key is the idempotency key, used for logging only.
	Key string
}

type jobState int32

const (
	jobQueued jobState = iota
	jobRunning
	jobAbandoned
)

type pending struct {
	ctx     context.Context
	backend backend.Backend
	req     *backend.Request
	key     string
	state   atomic.Int32
	done    chan struct{}
	resp    *backend.Response
	err     error
	queued  time.Time
	started time.Time
}

// TTS serializes access to the model. Jobs are served FIFO by one worker; at
// most one inference runs at any instant.
type TTS struct {
	models  Models
	opts    Options
	queue   chan *pending
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewTTS creates the gateway and starts its worker.
func NewTTS(models Models, opts Options) *TTS {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	if opts.MinReferenceDuration <= 0 {
		opts.MinReferenceDuration = DefaultMinReferenceDuration
	}

	s := &TTS{
		models:  models,
		opts:    opts,
		queue:   make(chan *pending, opts.QueueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.work()

	return s
}

// QueueDepth is the number of jobs waiting for the worker.
func (s *TTS) QueueDepth() int {
	return len(s.queue)
}

// Synthesize validates job, waits for its turn and runs it.
//
// Validation errors and an unready model are reported without queueing. A
// caller that gives up while its job is still queued gets ctx.Err() and the
// job is skipped. Once the job has been dispatched it runs to completion and
// Synthesize waits for it, so the reference file stays in place throughout.
func (s *TTS) Synthesize(ctx context.Context, job *Job) ([]byte, error) {
	if err := s.validate(job); err != nil {
		return nil, err
	}

	b, err := s.models.Backend()
	if err != nil {
		return nil, err
	}

	p := &pending{
		ctx:     ctx,
		backend: b,
		key:     job.Key,
		done:    make(chan struct{}),
		queued:  time.Now(),
		req: &backend.Request{
			Text:               strings.TrimSpace(job.Text),
			ReferenceAudioPath: job.ReferencePath,
			ReferenceText:      job.ReferenceText,
		},
	}

	select {
	case <-s.quit:
		return nil, ErrClosed
	default:
	}

	select {
	case s.queue <- p:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.quit:
		return nil, ErrClosed
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		if p.state.CompareAndSwap(int32(jobQueued), int32(jobAbandoned)) {
			slog.Info("Synthesis abandoned while queued", "key", job.Key, "waited", time.Since(p.queued))
			return nil, ctx.Err()
		}
		<-p.done
	case <-s.stopped:
		if p.state.CompareAndSwap(int32(jobQueued), int32(jobAbandoned)) {
			return nil, ErrClosed
		}
		<-p.done
	}

	if p.err != nil {
		return nil, p.err
	}
	return p.resp.Audio, nil
}

// Close stops the worker after the running job, if any, finishes. Jobs still
// queued fail with ErrClosed.
func (s *TTS) Close() {
	s.once.Do(func() {
		close(s.quit)
		<-s.stopped
	})
}

func (s *TTS) validate(job *Job) error {
	if job == nil {
		return fmt.Errorf("%w: empty job", ErrInvalidInput)
	}

	text := strings.TrimSpace(job.Text)
	if text == "" {
		return fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(text); n > s.opts.MaxTextLength {
		return fmt.Errorf("%w: text is %d characters, limit is %d", ErrInvalidInput, n, s.opts.MaxTextLength)
	}

	if err := job.Hints.Validate(); err != nil {
		return err
	}

	if job.ReferencePath == "" {
		return fmt.Errorf("%w: reference audio is required", ErrInvalidInput)
	}

	info, err := audio.RequireDuration(job.ReferencePath, s.opts.MinReferenceDuration)
	if err != nil {
		switch {
		case errors.Is(err, audio.ErrTooShort), errors.Is(err, audio.ErrEmpty), errors.Is(err, audio.ErrUnsupportedFormat):
			return fmt.Errorf("%w: reference audio: %w", ErrInvalidInput, err)
		default:
			return fmt.Errorf("%w: reference audio: %w", ErrInternal, err)
		}
	}

	slog.Debug("Reference audio accepted",
		"format", info.Format,
		"duration", info.Duration,
		"size", humanize.Bytes(uint64(info.Size)),
	)

	return nil
}

func (s *TTS) work() {
	defer close(s.stopped)

	for {
		select {
		case <-s.quit:
			s.drain()
			return
		case p := <-s.queue:
			if !p.state.CompareAndSwap(int32(jobQueued), int32(jobRunning)) {
				continue
			}
			s.run(p)
			close(p.done)
		}
	}
}

func (s *TTS) drain() {
	for {
		select {
		case p := <-s.queue:
			if p.state.CompareAndSwap(int32(jobQueued), int32(jobRunning)) {
				p.err = ErrClosed
				close(p.done)
			}
		default:
			return
		}
	}
}

func (s *TTS) run(p *pending) {
	p.started = time.Now()
	slog.Info("Synthesis started",
		"key", p.key,
		"text_length", utf8.RuneCountInString(p.req.Text),
		"waited", p.started.Sub(p.queued),
	)

	resp, err := s.infer(context.WithoutCancel(p.ctx), p)
	elapsed := time.Since(p.started)

	switch {
	case err != nil:
		p.err = err
		slog.Error("Synthesis failed", "key", p.key, "elapsed", elapsed, "error", err)
	case resp == nil || len(resp.Audio) == 0:
		p.err = fmt.Errorf("%w: engine produced no audio", ErrInference)
		slog.Error("Synthesis failed", "key", p.key, "elapsed", elapsed, "error", p.err)
	default:
		p.resp = resp
		slog.Info("Synthesis finished",
			"key", p.key,
			"elapsed", elapsed,
			"size", humanize.Bytes(uint64(len(resp.Audio))),
		)
	}
}

func (s *TTS) infer(ctx context.Context, p *pending) (resp *backend.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("%w: engine panicked: %v", ErrInternal, r)
		}
	}()

	resp, err = p.backend.Infer(ctx, p.req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return resp, nil
}
