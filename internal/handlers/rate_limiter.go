package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Anthobetto/UNMI-sub001/internal/platform/httpx"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/observability"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/requestctx"
)

type rateLimiter interface {
	// Allow records a hit for key and reports whether it is within the limit, plus the time
	// the current window resets.
	Allow(key string) (bool, time.Time)
}

type simpleRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

func (l *simpleRateLimiter) Allow(key string) (bool, time.Time) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		entry = rateEntry{count: 1, reset: now.Add(l.window)}
		l.store[key] = entry
		l.pruneExpiredLocked(now)
		return true, entry.reset
	}

	if entry.count >= l.limit {
		return false, entry.reset
	}
	entry.count++
	l.store[key] = entry
	return true, entry.reset
}

func (l *simpleRateLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}

// RateLimitPerClientIP limits requests per client IP to perMinute. A non-positive limit disables
// the middleware.
func RateLimitPerClientIP(perMinute int, clock func() time.Time) func(http.Handler) http.Handler {
	return rateLimitMiddleware(newSimpleRateLimiter(perMinute, time.Minute, clock), clock)
}

func rateLimitMiddleware(limiter rateLimiter, clock func() time.Time) func(http.Handler) http.Handler {
	if clock == nil {
		clock = time.Now
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestctx.ClientIP(r.Context())
			if key == "" {
				key = observability.ClientIP(r)
			}
			ok, reset := limiter.Allow(key)
			if !ok {
				retryAfter := int(reset.Sub(clock()).Seconds() + 0.999)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests).
					WithDetails(map[string]any{"retryAfterSeconds": retryAfter}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
