package handlers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/httpx"
)

// windowLimiter admits at most limit calls per key inside each fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	windows   map[string]callWindow
	lastPrune time.Time
}

type callWindow struct {
	calls int
	until time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) *windowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]callWindow),
	}
}

// take records a call for key. When the key is over its limit it returns false and the
// time left until the window resets.
func (l *windowLimiter) take(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= l.window {
		for k, w := range l.windows {
			if !now.Before(w.until) {
				delete(l.windows, k)
			}
		}
		l.lastPrune = now
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.until) {
		l.windows[key] = callWindow{calls: 1, until: now.Add(l.window)}
		return true, 0
	}
	if w.calls >= l.limit {
		return false, w.until.Sub(now)
	}
	w.calls++
	l.windows[key] = w
	return true, 0
}

// rateLimit rejects requests over the limit with 429. keyFn picks the bucket for a request.
func rateLimit(l *windowLimiter, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.take(keyFn(r))
			if !ok {
				seconds := int(math.Ceil(wait.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", fmt.Sprintf("too many requests, retry in %ds", seconds), http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
