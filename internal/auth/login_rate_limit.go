package auth

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"directory-api/internal/httpx"
)

// IPLimitStore persists per-key hits so limits hold across instances. Keys
// are "<scope>:<ip>".
type IPLimitStore interface {
	AllowLoginIP(ctx context.Context, key string, maxHits int, window time.Duration, now time.Time) (bool, time.Duration, error)
}

// LoginRateLimiter throttles unauthenticated endpoints per client ip, with a
// separate budget per scope. With a store it counts in Postgres or Redis;
// without one (or when the store fails) it falls back to an in-process
// sliding window.
type LoginRateLimiter struct {
	store   IPLimitStore
	maxHits int
	window  time.Duration
	limited *prometheus.CounterVec

	mu        sync.Mutex
	hitByKey  map[string][]time.Time
	maxMemory int
}

func NewLoginRateLimiter(store IPLimitStore, maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		store:     store,
		maxHits:   maxHits,
		window:    window,
		hitByKey:  make(map[string][]time.Time),
		maxMemory: 5000,
	}
}

// WithMetrics counts rejected requests by scope.
func (l *LoginRateLimiter) WithMetrics(limited *prometheus.CounterVec) *LoginRateLimiter {
	l.limited = limited
	return l
}

// Middleware limits the user login endpoint.
func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return l.Scoped("login")(next)
}

// Scoped returns a middleware that counts hits per scope and client ip.
func (l *LoginRateLimiter) Scoped(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + httpx.ClientIP(r)

			allowed, retryAfter := l.check(r.Context(), key, time.Now().UTC())
			if !allowed {
				if l.limited != nil {
					l.limited.WithLabelValues(scope).Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				httpx.WriteError(w, http.StatusTooManyRequests, "too many attempts, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (l *LoginRateLimiter) check(ctx context.Context, key string, now time.Time) (bool, time.Duration) {
	if l.store != nil {
		allowed, retryAfter, err := l.store.AllowLoginIP(ctx, key, l.maxHits, l.window, now)
		if err == nil {
			return allowed, retryAfter
		}
	}
	return l.allow(key, now)
}

func (l *LoginRateLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hitByKey[key]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	if len(filtered) >= l.maxHits {
		retryAfter := filtered[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		l.hitByKey[key] = filtered
		return false, retryAfter
	}

	l.hitByKey[key] = append(filtered, now)

	if len(l.hitByKey) > l.maxMemory {
		for k, value := range l.hitByKey {
			if len(value) == 0 || value[len(value)-1].Before(threshold) {
				delete(l.hitByKey, k)
			}
		}
	}

	return true, 0
}
