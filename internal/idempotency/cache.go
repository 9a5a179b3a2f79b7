// Package idempotency deduplicates expensive computations by a client key.
//
// The index maps a key to an entry that is either in flight or completed.
// Callers that find an in-flight entry attach to it and receive its outcome,
// so at most one computation per key runs at a time. Only successful results
// are kept; a failure removes the entry so the next caller starts over.
package idempotency

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPanicked is returned to every waiter when the computation panicked.
var ErrPanicked = errors.New("idempotent computation panicked")

const (
	DefaultMaxEntries = 256
	DefaultTTL        = time.Hour
)

// Source tells where a Result came from.
type Source string

const (
	// SourceUncached means no key was given and the caller computed directly.
	SourceUncached Source = "uncached"
	// SourceComputed means this caller claimed the key and started the computation.
	SourceComputed Source = "computed"
	// SourceJoined means this caller attached to a computation already in flight.
	SourceJoined Source = "joined"
	// SourceHit means a completed entry was returned.
	SourceHit Source = "hit"
)

// ComputeFunc produces the value for a key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Result is what GetOrCompute hands back. Source is set even when an error
// is returned, so callers know whether their ComputeFunc was scheduled.
type Result struct {
	CreatedAt time.Time
	Source    Source
	Audio     []byte
}

type entry struct {
	done      chan struct{}
	elem      *list.Element
	createdAt time.Time
	key       string
	audio     []byte
	err       error
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Entries   int
	InFlight  int
	Hits      int64
	Joins     int64
	Computes  int64
	Failures  int64
	Evictions int64
}

// Cache is a bounded key to result map with in-flight deduplication.
type Cache struct {
	entries    map[string]*entry
	lru        *list.List
	now        func() time.Time
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	inFlight   int
	stats      Stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache keeping at most maxEntries completed results for ttl.
// Non-positive values fall back to the defaults.
func New(maxEntries int, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		lru:     list.New(),
		now:     time.Now,
	}
	c.setLimits(maxEntries, ttl)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetOrCompute returns the result for key, computing it with fn when no
// completed or in-flight entry exists. With an empty key fn always runs in
// the caller's goroutine and nothing is stored.
//
// A claimed computation runs detached from ctx: if the caller goes away the
// computation still finishes and its result is stored for the next request.
func (c *Cache) GetOrCompute(ctx context.Context, key string, fn ComputeFunc) (Result, error) {
	if key == "" {
		audio, err := fn(ctx)
		return Result{Audio: audio, CreatedAt: c.now(), Source: SourceUncached}, err
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.completed() && c.expired(e) {
		c.removeLocked(e)
		ok = false
	}

	var source Source
	switch {
	case ok && e.completed():
		c.lru.MoveToFront(e.elem)
		c.stats.Hits++
		c.mu.Unlock()
		slog.Debug("Idempotency cache hit", "key", key)
		return Result{Audio: e.audio, CreatedAt: e.createdAt, Source: SourceHit}, nil

	case ok:
		c.stats.Joins++
		source = SourceJoined

	default:
		e = &entry{key: key, done: make(chan struct{})}
		c.entries[key] = e
		c.inFlight++
		c.stats.Computes++
		source = SourceComputed
		go c.run(context.WithoutCancel(ctx), e, fn)
	}
	c.mu.Unlock()

	if source == SourceJoined {
		slog.Debug("Joined in-flight computation", "key", key)
	}

	select {
	case <-ctx.Done():
		return Result{Source: source}, ctx.Err()
	case <-e.done:
	}

	if e.err != nil {
		return Result{Source: source}, e.err
	}

	return Result{Audio: e.audio, CreatedAt: e.createdAt, Source: source}, nil
}

// run executes fn and publishes its outcome to every waiter on e.
func (c *Cache) run(ctx context.Context, e *entry, fn ComputeFunc) {
	var (
		audio []byte
		err   error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Idempotent computation panicked", "key", e.key, "panic", r)
				err = fmt.Errorf("%w: %v", ErrPanicked, r)
			}
		}()
		audio, err = fn(ctx)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight--
	e.audio, e.err, e.createdAt = audio, err, c.now()

	current := c.entries[e.key] == e
	switch {
	case err != nil:
		c.stats.Failures++
		if current {
			delete(c.entries, e.key)
		}
		slog.Debug("Idempotent computation failed, not cached", "key", e.key, "error", err)
	case current:
		e.elem = c.lru.PushFront(e)
		c.evictLocked()
	}

	close(e.done)
}

// Forget drops key from the index. Callers already waiting on an in-flight
// computation still receive its result; new callers start fresh.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Resize changes the retention limits and evicts immediately if needed.
func (c *Cache) Resize(maxEntries int, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLimits(maxEntries, ttl)
	c.evictLocked()

	slog.Info("Idempotency cache resized", "max_entries", c.maxEntries, "ttl", c.ttl)
}

// Len returns the number of keys in the index, in flight or completed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	s.InFlight = c.inFlight
	return s
}

func (c *Cache) setLimits(maxEntries int, ttl time.Duration) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.maxEntries, c.ttl = maxEntries, ttl
}

// evictLocked drops expired entries from the cold end, then trims to maxEntries.
// Only completed entries live in the LRU list. Callers must hold c.mu.
func (c *Cache) evictLocked() {
	for back := c.lru.Back(); back != nil; {
		e := back.Value.(*entry)
		prev := back.Prev()
		if c.expired(e) || c.lru.Len() > c.maxEntries {
			c.removeLocked(e)
			c.stats.Evictions++
		}
		back = prev
	}
}

func (c *Cache) removeLocked(e *entry) {
	if c.entries[e.key] == e {
		delete(c.entries, e.key)
	}
	if e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
	}
}

func (c *Cache) expired(e *entry) bool {
	return c.now().Sub(e.createdAt) > c.ttl
}

func (e *entry) completed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}
