package lockout

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	failures    int
	first       time.Time
	lockedUntil time.Time
}

// MemoryLimiter keeps counters in process memory. Used when Redis is not configured.
type MemoryLimiter struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*entry
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns a limiter using cfg; now may be nil for time.Now.
func NewMemoryLimiter(cfg Config, now func() time.Time) (*MemoryLimiter, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{cfg: cfg, now: now, entries: make(map[string]*entry)}, nil
}

func (l *MemoryLimiter) Locked(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return false, nil
	}
	return l.now().Before(e.lockedUntil), nil
}

func (l *MemoryLimiter) Fail(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.Sub(e.first) >= l.cfg.Duration {
		e = &entry{first: now, lockedUntil: lockedUntil(e)}
		l.entries[key] = e
	}
	e.failures++
	if e.failures < l.cfg.MaxAttempts {
		return false, nil
	}
	e.failures = 0
	e.first = now
	e.lockedUntil = now.Add(l.cfg.Duration)
	return true, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

func lockedUntil(e *entry) time.Time {
	if e == nil {
		return time.Time{}
	}
	return e.lockedUntil
}
