package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxThrottleKeys = 10000

// throttle keeps one token bucket per key (login e-mail).
type throttle struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	keys  map[string]*rate.Limiter
}

func newThrottle(perMin, burst int) *throttle {
	if perMin <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = perMin
	}
	return &throttle{
		limit: rate.Every(time.Minute / time.Duration(perMin)),
		burst: burst,
		keys:  map[string]*rate.Limiter{},
	}
}

// allow reports whether key may proceed now. A nil throttle allows everything.
func (t *throttle) allow(key string, now time.Time) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.keys[key]
	if !ok {
		if len(t.keys) >= maxThrottleKeys {
			t.pruneLocked(now)
		}
		lim = rate.NewLimiter(t.limit, t.burst)
		t.keys[key] = lim
	}
	return lim.AllowN(now, 1)
}

// pruneLocked drops limiters that have refilled completely.
func (t *throttle) pruneLocked(now time.Time) {
	for k, lim := range t.keys {
		if lim.TokensAt(now) >= float64(t.burst) {
			delete(t.keys, k)
		}
	}
}
