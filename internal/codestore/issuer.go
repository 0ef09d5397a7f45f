package codestore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"directory-api/internal/observability"
	"directory-api/internal/validate"
)

const (
	defaultTTL    = 15 * time.Minute
	issueAttempts = 8
)

var codeSpace = big.NewInt(1_000_000)

// Issuer generates codes and resolves them through a Store.
type Issuer struct {
	store   Store
	ttl     time.Duration
	metrics *observability.Metrics
	now     func() time.Time
	random  func() (string, error)
}

func NewIssuer(store Store, ttl time.Duration, metrics *observability.Metrics) *Issuer {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Issuer{
		store:   store,
		ttl:     ttl,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		random:  randomCode,
	}
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue stores a fresh code for the person, replacing any earlier one.
func (i *Issuer) Issue(ctx context.Context, purpose Purpose, personID, email string) (Entry, error) {
	for attempt := 0; attempt < issueAttempts; attempt++ {
		code, err := i.random()
		if err != nil {
			return Entry{}, err
		}

		entry := Entry{
			PersonID:  personID,
			Code:      code,
			Email:     email,
			ExpiresAt: i.now().Add(i.ttl),
		}
		err = i.store.Put(ctx, purpose, entry)
		if errors.Is(err, ErrCodeInUse) {
			continue
		}
		if err != nil {
			return Entry{}, err
		}

		if i.metrics != nil {
			i.metrics.CodesIssued.WithLabelValues(string(purpose)).Inc()
		}
		return entry, nil
	}
	return Entry{}, fmt.Errorf("issue %s code: no free code after %d attempts", purpose, issueAttempts)
}

// Check reports whether code is live without consuming it.
func (i *Issuer) Check(ctx context.Context, purpose Purpose, code string) (Entry, error) {
	if !validate.IsCode(code) {
		return Entry{}, ErrNotFound
	}
	return i.store.Lookup(ctx, purpose, code)
}

// Consume resolves and removes the code so it cannot be used twice.
func (i *Issuer) Consume(ctx context.Context, purpose Purpose, code string) (Entry, error) {
	if !validate.IsCode(code) {
		return Entry{}, ErrNotFound
	}
	return i.store.Take(ctx, purpose, code)
}

// Restore puts back an entry taken by Consume when the action it authorized
// failed. Expired entries and codes reused in the meantime are dropped.
func (i *Issuer) Restore(ctx context.Context, purpose Purpose, entry Entry) error {
	if !entry.ExpiresAt.After(i.now()) {
		return nil
	}
	err := i.store.Put(ctx, purpose, entry)
	if errors.Is(err, ErrCodeInUse) {
		return nil
	}
	return err
}

func (i *Issuer) Discard(ctx context.Context, purpose Purpose, personID string) error {
	return i.store.Remove(ctx, purpose, personID)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
