package codestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clockedStore struct {
	Store
	setNow func(func() time.Time)
}

func newStores(t *testing.T) map[string]clockedStore {
	t.Helper()

	mem := NewMemoryStore()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rds := NewRedisStore(client)

	return map[string]clockedStore{
		"memory": {Store: mem, setNow: func(now func() time.Time) { mem.now = now }},
		"redis":  {Store: rds, setNow: func(now func() time.Time) { rds.now = now }},
	}
}

func TestStorePutReplacesByPerson(t *testing.T) {
	base := time.Now()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.setNow(func() time.Time { return base })

			require.NoError(t, store.Put(ctx, PasswordReset, Entry{PersonID: "p1", Code: "111111", Email: "a@x.io", ExpiresAt: base.Add(time.Minute)}))
			require.NoError(t, store.Put(ctx, PasswordReset, Entry{PersonID: "p1", Code: "222222", Email: "a@x.io", ExpiresAt: base.Add(time.Minute)}))

			_, err := store.Lookup(ctx, PasswordReset, "111111")
			require.ErrorIs(t, err, ErrNotFound)

			entry, err := store.Lookup(ctx, PasswordReset, "222222")
			require.NoError(t, err)
			assert.Equal(t, "p1", entry.PersonID)
			assert.Equal(t, "a@x.io", entry.Email)
		})
	}
}

func TestStoreRejectsCodeHeldByAnotherPerson(t *testing.T) {
	base := time.Now()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.setNow(func() time.Time { return base })

			require.NoError(t, store.Put(ctx, PasswordReset, Entry{PersonID: "p1", Code: "123456", ExpiresAt: base.Add(time.Minute)}))
			err := store.Put(ctx, PasswordReset, Entry{PersonID: "p2", Code: "123456", ExpiresAt: base.Add(time.Minute)})
			require.ErrorIs(t, err, ErrCodeInUse)

			// Purposes are independent.
			require.NoError(t, store.Put(ctx, EmailChange, Entry{PersonID: "p2", Code: "123456", ExpiresAt: base.Add(time.Minute)}))
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	base := time.Now()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.setNow(func() time.Time { return base })

			require.NoError(t, store.Put(ctx, EmailChange, Entry{PersonID: "p1", Code: "654321", ExpiresAt: base.Add(time.Minute)}))

			store.setNow(func() time.Time { return base.Add(time.Minute) })
			_, err := store.Lookup(ctx, EmailChange, "654321")
			require.ErrorIs(t, err, ErrNotFound)
			_, err = store.Take(ctx, EmailChange, "654321")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreTakeAndRemove(t *testing.T) {
	base := time.Now()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.setNow(func() time.Time { return base })

			require.NoError(t, store.Put(ctx, PasswordReset, Entry{PersonID: "p1", Code: "000001", ExpiresAt: base.Add(time.Minute)}))
			entry, err := store.Take(ctx, PasswordReset, "000001")
			require.NoError(t, err)
			assert.Equal(t, "p1", entry.PersonID)

			_, err = store.Take(ctx, PasswordReset, "000001")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, PasswordReset, Entry{PersonID: "p2", Code: "000002", ExpiresAt: base.Add(time.Minute)}))
			require.NoError(t, store.Remove(ctx, PasswordReset, "p2"))
			_, err = store.Lookup(ctx, PasswordReset, "000002")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Remove(ctx, PasswordReset, "nobody"))
		})
	}
}

func TestRedisStoreSetsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	require.NoError(t, store.Put(context.Background(), PasswordReset, Entry{
		PersonID:  "p1",
		Code:      "999999",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	ttl := mr.TTL(keyPrefix + "password_reset:code:999999")
	assert.Greater(t, ttl, 9*time.Minute)
	assert.LessOrEqual(t, ttl, 10*time.Minute)

	mr.FastForward(11 * time.Minute)
	_, err := store.Lookup(context.Background(), PasswordReset, "999999")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expires := time.Now().Add(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			person := "p" + string(rune('a'+i%5))
			code := "10000" + string(rune('0'+i%10))
			_ = store.Put(ctx, PasswordReset, Entry{PersonID: person, Code: code, ExpiresAt: expires})
			_, _ = store.Lookup(ctx, PasswordReset, code)
			if i%7 == 0 {
				_ = store.Remove(ctx, PasswordReset, person)
			}
		}(i)
	}
	wg.Wait()

	for key, entry := range store.byPerson {
		assert.Equal(t, key.value, store.byCode[memKey{key.purpose, entry.Code}])
	}
}

func TestMemoryStorePrune(t *testing.T) {
	base := time.Now()
	store := NewMemoryStore()
	store.now = func() time.Time { return base }

	require.NoError(t, store.Put(context.Background(), PasswordReset, Entry{PersonID: "p1", Code: "111111", ExpiresAt: base.Add(time.Second)}))
	require.NoError(t, store.Put(context.Background(), PasswordReset, Entry{PersonID: "p2", Code: "222222", ExpiresAt: base.Add(time.Hour)}))

	store.now = func() time.Time { return base.Add(time.Minute) }
	assert.Equal(t, 1, store.Prune())
	assert.Len(t, store.byPerson, 1)
	assert.Len(t, store.byCode, 1)
}

func TestRedisStoreConcurrentTakeHandsOutCodeOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 32})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, PasswordReset, Entry{PersonID: "p1", Code: "123456", ExpiresAt: time.Now().Add(time.Minute)}))

	const callers = 24
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		taken    int
		failures []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Take(ctx, PasswordReset, "123456")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				taken++
			case !errors.Is(err, ErrNotFound):
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, taken)
	assert.Empty(t, failures)
}
