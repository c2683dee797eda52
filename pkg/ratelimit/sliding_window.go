package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow admits at most limit requests per key within any window of
// the configured length. Timestamps of a key are pruned lazily whenever the
// key is seen again; WithMaxKeys bounds the number of tracked keys.
type SlidingWindow struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	size    time.Duration
	maxKeys int
	now     func() time.Time

	// afterLookup runs between the table lookup and locking the window.
	afterLookup func(key string)
}

type window struct {
	mu       sync.Mutex
	requests []time.Time
	// dropped is set under mu once the window is removed from the table.
	dropped bool
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindow) { l.now = now }
}

// WithMaxKeys caps the number of tracked keys. When the table is full, keys
// with no request inside the window are dropped before a new key is added.
func WithMaxKeys(n int) Option {
	return func(l *SlidingWindow) { l.maxKeys = n }
}

// NewSlidingWindow creates a limiter admitting limit requests per window.
func NewSlidingWindow(limit int, size time.Duration, opts ...Option) *SlidingWindow {
	if limit < 1 {
		limit = 1
	}
	l := &SlidingWindow{
		windows: make(map[string]*window),
		limit:   limit,
		size:    size,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a request for key if it is under the limit. Denied requests
// are not recorded.
func (l *SlidingWindow) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	cutoff := now.Add(-l.size)

	for {
		w := l.lookup(key, cutoff)
		if l.afterLookup != nil {
			l.afterLookup(key)
		}

		w.mu.Lock()
		if w.dropped {
			// Swept or reset after the lookup; recording here would be lost.
			w.mu.Unlock()
			continue
		}
		d := l.record(w, now, cutoff)
		w.mu.Unlock()
		return d, nil
	}
}

func (l *SlidingWindow) lookup(key string, cutoff time.Time) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		if l.maxKeys > 0 && len(l.windows) >= l.maxKeys {
			l.sweepLocked(cutoff)
		}
		w = &window{}
		l.windows[key] = w
	}
	return w
}

// record admits or denies one request. w.mu must be held.
func (l *SlidingWindow) record(w *window, now, cutoff time.Time) Decision {
	w.prune(cutoff)
	if len(w.requests) >= l.limit {
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfter(w.requests[0].Add(l.size).Sub(now)),
		}
	}
	w.requests = append(w.requests, now)
	return Decision{Allowed: true, Remaining: l.limit - len(w.requests)}
}

// Reset forgets every request recorded for key.
func (l *SlidingWindow) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.windows[key]; ok {
		w.mu.Lock()
		w.dropped = true
		w.mu.Unlock()
		delete(l.windows, key)
	}
}

// Len returns the number of tracked keys.
func (l *SlidingWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// sweepLocked drops keys whose newest request is at or before cutoff.
// l.mu must be held.
func (l *SlidingWindow) sweepLocked(cutoff time.Time) {
	for key, w := range l.windows {
		w.mu.Lock()
		idle := len(w.requests) == 0 || !w.requests[len(w.requests)-1].After(cutoff)
		if idle {
			w.dropped = true
		}
		w.mu.Unlock()
		if idle {
			delete(l.windows, key)
		}
	}
}

// prune drops timestamps at or before cutoff. requests is kept in
// ascending order.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.requests) && !w.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.requests = append(w.requests[:0], w.requests[i:]...)
	}
}
