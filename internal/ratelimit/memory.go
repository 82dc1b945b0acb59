package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Memory limits requests per key using a token bucket per key.
type Memory struct {
	keys   map[string]*rate.Limiter
	mu     sync.RWMutex
	limit  rate.Limit
	burst  int
	window time.Duration
}

// NewMemory allows quota requests per window per key, all of which may arrive at once.
func NewMemory(quota int, window time.Duration) *Memory {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{
		keys:   make(map[string]*rate.Limiter),
		limit:  rate.Limit(float64(quota) / window.Seconds()),
		burst:  quota,
		window: window,
	}
}

func (m *Memory) getLimiter(key string) *rate.Limiter {
	m.mu.RLock()
	lim, ok := m.keys[key]
	m.mu.RUnlock()
	if ok {
		return lim
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after acquiring write lock
	if lim, ok = m.keys[key]; ok {
		return lim
	}
	lim = rate.NewLimiter(m.limit, m.burst)
	m.keys[key] = lim
	return lim
}

// Check takes a token for key, or reports how long until one is available.
func (m *Memory) Check(_ context.Context, key string, now time.Time) (Decision, error) {
	lim := m.getLimiter(key)

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, Limit: m.burst, RetryAfter: delay}, nil
	}

	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: m.burst, Remaining: remaining}, nil
}

// Sweep drops keys whose bucket has refilled completely. Such a key behaves
// exactly like one never seen, so nothing is lost. Returns the number removed.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, lim := range m.keys {
		if lim.TokensAt(now) >= float64(m.burst) {
			delete(m.keys, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Window returns the configured window.
func (m *Memory) Window() time.Duration {
	return m.window
}
