package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/marcelsud/heatmap-webhooks/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultWindow  = 60 * time.Second
	DefaultMaxKeys = 100_000
)

// CeilingFunc returns the number of requests admitted per window for an endpoint class
type CeilingFunc func(class string) int

// Decision is the outcome of one admission check
type Decision struct {
	Admitted          bool
	Limit             int
	Remaining         int
	RetryAfterSeconds int // zero when admitted
	ResetAt           time.Time
}

type key struct {
	client string
	class  string
}

// window holds the admission times of one key, oldest first
type window struct {
	mu      sync.Mutex
	samples []time.Time
	dead    bool // set once the registry dropped it
}

// prune drops samples at or before cutoff
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.samples) && !w.samples[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

func (w *window) latest() time.Time {
	if len(w.samples) == 0 {
		return time.Time{}
	}
	return w.samples[len(w.samples)-1]
}

/* Limiter is a process-local sliding-window limiter keyed by (client, endpoint class).
 * The registry lock only guards the key map; each window is counted and recorded
 * under its own lock so concurrent checks on one key can neither lose a sample nor
 * admit past the ceiling.
 * Uses pointer semantics as it's an API, not data
 */
type Limiter struct {
	mu      sync.Mutex
	windows map[key]*window

	ceiling CeilingFunc
	size    time.Duration
	maxKeys int
	now     func() time.Time
	metrics metrics.Recorder
	logger  zerolog.Logger
}

type Option func(*Limiter)

func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.size = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(l *Limiter) {
		if r != nil {
			l.metrics = r
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a limiter that asks ceiling for the limit of every class it sees
func New(ceiling CeilingFunc, opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[key]*window),
		ceiling: ceiling,
		size:    DefaultWindow,
		maxKeys: DefaultMaxKeys,
		now:     time.Now,
		metrics: metrics.Nop{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns the sliding window size
func (l *Limiter) Window() time.Duration {
	return l.size
}

// Check admits or rejects one request for clientKey on class and records it when admitted
func (l *Limiter) Check(ctx context.Context, clientKey, class string) Decision {
	limit := l.ceiling(class)
	k := key{client: clientKey, class: class}

	for {
		w := l.lookup(k)
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}

		now := l.now()
		w.prune(now.Add(-l.size))
		count := len(w.samples)
		d := Decision{
			Limit:   limit,
			ResetAt: now.Add(l.size),
		}
		if count >= limit {
			d.RetryAfterSeconds = int(l.size / time.Second)
		} else {
			w.samples = append(w.samples, now)
			d.Admitted = true
			d.Remaining = max(0, limit-count-1)
		}
		w.mu.Unlock()

		l.metrics.RateLimitDecision(ctx, class, d.Admitted)
		return d
	}
}

// lookup returns the window for k, creating it when missing
func (l *Limiter) lookup(k key) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.windows[k]; ok {
		return w
	}
	if len(l.windows) >= l.maxKeys {
		l.sweepLocked()
		if len(l.windows) >= l.maxKeys {
			l.evictOldestLocked()
		}
	}
	w := &window{}
	l.windows[k] = w
	return w
}

// Sweep drops every key whose window no longer holds samples and returns how many were dropped
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sweepLocked()
}

func (l *Limiter) sweepLocked() int {
	cutoff := l.now().Add(-l.size)
	dropped := 0
	for k, w := range l.windows {
		w.mu.Lock()
		w.prune(cutoff)
		if len(w.samples) == 0 {
			w.dead = true
			delete(l.windows, k)
			dropped++
		}
		w.mu.Unlock()
	}
	return dropped
}

// evictOldestLocked drops the key that saw traffic least recently
func (l *Limiter) evictOldestLocked() {
	var (
		oldestKey key
		oldest    *window
		oldestAt  time.Time
	)
	for k, w := range l.windows {
		w.mu.Lock()
		at := w.latest()
		w.mu.Unlock()
		if oldest == nil || at.Before(oldestAt) {
			oldestKey, oldest, oldestAt = k, w, at
		}
	}
	if oldest == nil {
		return
	}
	oldest.mu.Lock()
	oldest.dead = true
	oldest.mu.Unlock()
	delete(l.windows, oldestKey)
	l.logger.Warn().Str("client", oldestKey.client).Str("class", oldestKey.class).Msg("rate limiter full, evicted key")
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.windows)
}

// RunSweeper sweeps every interval until ctx is done
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug().Int("dropped", n).Msg("rate limiter swept")
			}
		}
	}
}
