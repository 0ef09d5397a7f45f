package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingIPStore struct{ calls int }

func (f *failingIPStore) AllowLoginIP(context.Context, string, int, time.Duration, time.Time) (bool, time.Duration, error) {
	f.calls++
	return false, 0, errors.New("database unavailable")
}

type denyIPStore struct{}

func (denyIPStore) AllowLoginIP(context.Context, string, int, time.Duration, time.Time) (bool, time.Duration, error) {
	return false, 42 * time.Second, nil
}

func TestLoginRateLimiterInMemoryWindow(t *testing.T) {
	limiter := NewLoginRateLimiter(nil, 2, time.Minute)
	now := time.Now().UTC()

	allowed, _ := limiter.allow("1.1.1.1", now)
	assert.True(t, allowed)
	allowed, _ = limiter.allow("1.1.1.1", now.Add(time.Second))
	assert.True(t, allowed)

	allowed, retryAfter := limiter.allow("1.1.1.1", now.Add(2*time.Second))
	assert.False(t, allowed)
	assert.InDelta(t, (58 * time.Second).Seconds(), retryAfter.Seconds(), 1)

	allowed, _ = limiter.allow("2.2.2.2", now)
	assert.True(t, allowed)

	allowed, _ = limiter.allow("1.1.1.1", now.Add(61*time.Second))
	assert.True(t, allowed)
}

func TestLoginRateLimiterFallsBackWhenStoreFails(t *testing.T) {
	store := &failingIPStore{}
	limiter := NewLoginRateLimiter(store, 1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, store.calls)
}

func TestLoginRateLimiterUsesStoreDecision(t *testing.T) {
	limiter := NewLoginRateLimiter(denyIPStore{}, 5, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
}

func TestLoginRateLimiterScopesAreIndependent(t *testing.T) {
	limiter := NewLoginRateLimiter(nil, 1, time.Minute)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	login := limiter.Scoped("person_login")(ok)
	reset := limiter.Scoped("password_reset")(ok)

	serve := func(h http.Handler) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve(login))
	assert.Equal(t, http.StatusTooManyRequests, serve(login))
	assert.Equal(t, http.StatusOK, serve(reset))
}

func TestRedisIPLimitStoreFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisIPLimitStore(client)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 2; i++ {
		allowed, _, err := store.AllowLoginIP(ctx, "login:1.1.1.1", 2, time.Minute, now)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retryAfter, err := store.AllowLoginIP(ctx, "login:1.1.1.1", 2, time.Minute, now)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.InDelta(t, time.Minute.Seconds(), retryAfter.Seconds(), 1)

	allowed, _, err = store.AllowLoginIP(ctx, "login:2.2.2.2", 2, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, allowed)

	mr.FastForward(time.Minute + time.Second)
	allowed, _, err = store.AllowLoginIP(ctx, "login:1.1.1.1", 2, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLoginRateLimiterKeysOnHostNotConnection(t *testing.T) {
	limiter := NewLoginRateLimiter(nil, 2, time.Minute)
	handler := limiter.Scoped("reset_code")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/recovery/password/validate", nil)
		req.RemoteAddr = "203.0.113.7:" + strconv.Itoa(40000+i)
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}
