package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"directory-api/internal/observability"
)

const defaultTTL = 24 * time.Hour

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrPersonBanned       = errors.New("person is banned")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Store interface {
	Create(ctx context.Context, s Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (Record, error)
	ListByPerson(ctx context.Context, personID string, now time.Time) ([]Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteByID(ctx context.Context, personID, sessionID string) error
	DeleteByPerson(ctx context.Context, personID, keepTokenHash string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type Service struct {
	store   Store
	ttl     time.Duration
	metrics *observability.Metrics
	now     func() time.Time
}

func NewService(store Store, ttl time.Duration, metrics *observability.Metrics) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		store:   store,
		ttl:     ttl,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

func (s *Service) Create(ctx context.Context, personID, ip, userAgent string) (Issued, error) {
	now := s.now()
	token, err := newToken(personID, ip, userAgent, now)
	if err != nil {
		return Issued{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Issued{}, fmt.Errorf("generate session id: %w", err)
	}

	record := Session{
		ID:        id.String(),
		PersonID:  personID,
		TokenHash: hashToken(token),
		IP:        ip,
		UserAgent: truncate(userAgent, 512),
		Device:    DeviceName(userAgent),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, record); err != nil {
		return Issued{}, err
	}

	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}

	return Issued{Token: token, PersonID: personID, ExpiresAt: record.ExpiresAt}, nil
}

// Validate resolves a raw token to its session. Expired sessions and sessions
// of banned or deleted people are rejected.
func (s *Service) Validate(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, s.reject(ErrSessionNotFound, "missing")
	}

	rec, err := s.store.FindByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, s.reject(err, "not_found")
		}
		return Session{}, err
	}

	if !s.now().Before(rec.ExpiresAt) {
		return Session{}, s.reject(ErrSessionExpired, "expired")
	}
	if rec.PersonDeleted {
		return Session{}, s.reject(ErrSessionNotFound, "person_deleted")
	}
	if rec.PersonBanned {
		return Session{}, s.reject(ErrPersonBanned, "banned")
	}

	return rec.Session, nil
}

func (s *Service) reject(err error, reason string) error {
	if s.metrics != nil {
		s.metrics.SessionRejections.WithLabelValues(reason).Inc()
	}
	return err
}

func (s *Service) Revoke(ctx context.Context, token string) error {
	return s.store.DeleteByTokenHash(ctx, hashToken(strings.TrimSpace(token)))
}

func (s *Service) RevokeByID(ctx context.Context, personID, sessionID string) error {
	return s.store.DeleteByID(ctx, personID, sessionID)
}

func (s *Service) RevokeAll(ctx context.Context, personID string) (int64, error) {
	return s.store.DeleteByPerson(ctx, personID, "")
}

// RevokeOthers keeps only the session identified by currentTokenHash.
func (s *Service) RevokeOthers(ctx context.Context, personID, currentTokenHash string) (int64, error) {
	return s.store.DeleteByPerson(ctx, personID, currentTokenHash)
}

func (s *Service) List(ctx context.Context, personID, currentTokenHash string) ([]View, error) {
	sessions, err := s.store.ListByPerson(ctx, personID, s.now())
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(sessions))
	for _, item := range sessions {
		views = append(views, View{
			ID:        item.ID,
			IP:        item.IP,
			Device:    item.Device,
			CreatedAt: item.CreatedAt,
			ExpiresAt: item.ExpiresAt,
			Current:   item.TokenHash == currentTokenHash,
		})
	}
	return views, nil
}

func (s *Service) PurgeExpired(ctx context.Context, batchSize int) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now(), batchSize)
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
