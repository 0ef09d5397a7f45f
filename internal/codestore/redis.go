package codestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "directory:codes:"
	watchRetries = 5
)

// RedisStore keeps codes in Redis with a TTL matching their expiry, so entries
// vanish on their own and are shared by every API instance.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) codeKey(purpose Purpose, code string) string {
	return keyPrefix + string(purpose) + ":code:" + code
}

func (s *RedisStore) personKey(purpose Purpose, personID string) string {
	return keyPrefix + string(purpose) + ":person:" + personID
}

func (s *RedisStore) Put(ctx context.Context, purpose Purpose, entry Entry) error {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("put code: entry already expired")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal code entry: %w", err)
	}

	codeKey := s.codeKey(purpose, entry.Code)
	personKey := s.personKey(purpose, entry.PersonID)

	err = s.watch(ctx, func(tx *redis.Tx) error {
		holder, err := s.read(ctx, tx, codeKey)
		switch {
		case err == nil && holder.PersonID != entry.PersonID:
			return ErrCodeInUse
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}

		previous, err := tx.Get(ctx, personKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("get person code: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != "" && previous != entry.Code {
				pipe.Del(ctx, s.codeKey(purpose, previous))
			}
			pipe.Set(ctx, codeKey, data, ttl)
			pipe.Set(ctx, personKey, entry.Code, ttl)
			return nil
		})
		return err
	}, codeKey, personKey)
	if err != nil {
		if errors.Is(err, ErrCodeInUse) {
			return err
		}
		return fmt.Errorf("put code: %w", err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, purpose Purpose, code string) (Entry, error) {
	return s.read(ctx, s.client, s.codeKey(purpose, code))
}

func (s *RedisStore) Take(ctx context.Context, purpose Purpose, code string) (Entry, error) {
	codeKey := s.codeKey(purpose, code)

	var taken Entry
	err := s.watch(ctx, func(tx *redis.Tx) error {
		entry, err := s.read(ctx, tx, codeKey)
		if err != nil {
			return err
		}

		personKey := s.personKey(purpose, entry.PersonID)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, codeKey)
			pipe.Del(ctx, personKey)
			return nil
		})
		if err != nil {
			return err
		}
		taken = entry
		return nil
	}, codeKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("take code: %w", err)
	}
	return taken, nil
}

func (s *RedisStore) Remove(ctx context.Context, purpose Purpose, personID string) error {
	personKey := s.personKey(purpose, personID)

	err := s.watch(ctx, func(tx *redis.Tx) error {
		code, err := tx.Get(ctx, personKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get person code: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, personKey)
			pipe.Del(ctx, s.codeKey(purpose, code))
			return nil
		})
		return err
	}, personKey)
	if err != nil {
		return fmt.Errorf("remove code: %w", err)
	}
	return nil
}

// watch runs fn in a WATCH transaction, retrying when another client touched
// the watched keys before EXEC.
func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < watchRetries; i++ {
		err = s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) read(ctx context.Context, client stringGetter, key string) (Entry, error) {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get code: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("unmarshal code entry: %w", err)
	}
	if !s.now().Before(entry.ExpiresAt) {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}
