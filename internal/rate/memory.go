// Package rate is an in-process fixed window limiter keyed by caller.
package rate

import (
	"sync"
	"time"
)

type window struct {
	hits  int
	start time.Time
}

type Limiter struct {
	mu      sync.Mutex
	windows map[string]window
	lastGC  time.Time
	now     func() time.Time
}

func NewLimiter() *Limiter {
	l := &Limiter{windows: map[string]window{}, now: func() time.Time { return time.Now().UTC() }}
	l.lastGC = l.now()
	return l
}

// Allow counts one hit for key. When the key is over limit inside the current window it
// returns false and how long until the window resets.
func (l *Limiter) Allow(key string, limit int, span time.Duration) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastGC) > time.Minute {
		for k, w := range l.windows {
			if now.Sub(w.start) > 3*span {
				delete(l.windows, k)
			}
		}
		l.lastGC = now
	}
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= span {
		l.windows[key] = window{hits: 1, start: now}
		return true, 0
	}
	if w.hits >= limit {
		return false, span - now.Sub(w.start)
	}
	w.hits++
	l.windows[key] = w
	return true, 0
}

// Reset forgets key, e.g. after a successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
}
