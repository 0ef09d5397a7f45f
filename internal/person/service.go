package person

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"directory-api/internal/httpx"
	"directory-api/internal/observability"
	"directory-api/internal/session"
	"directory-api/internal/storage"
)

const photoFolder = "directory/people"

type Store interface {
	Create(ctx context.Context, in CreateInput, passwordHash string) (Person, error)
	Get(ctx context.Context, id string) (Person, error)
	GetByEmail(ctx context.Context, email string) (Person, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter ListFilter, page httpx.Page) ([]Person, int, error)
	Update(ctx context.Context, id string, profile Profile) (Person, error)
	SoftDelete(ctx context.Context, id string) error
	SetPassword(ctx context.Context, id, passwordHash string) error
	SetEmail(ctx context.Context, id, email string, verifiedAt time.Time) error
	SetPhotoURL(ctx context.Context, id, photoURL string) error
	SetBanned(ctx context.Context, id string, banned bool, reason, actor string, now time.Time) (BanRecord, error)
	BanHistory(ctx context.Context, id string) ([]BanRecord, error)
}

// SessionRevoker ends person sessions after credential or status changes.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, personID string) (int64, error)
	RevokeOthers(ctx context.Context, personID, currentTokenHash string) (int64, error)
}

type Service struct {
	store    Store
	sessions SessionRevoker
	images   storage.ImageUploader
	metrics  *observability.Metrics
	logger   *observability.Logger
	cost     int
	now      func() time.Time
}

func NewService(store Store, sessions SessionRevoker, images storage.ImageUploader, metrics *observability.Metrics, logger *observability.Logger) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		images:   images,
		metrics:  metrics,
		logger:   logger,
		cost:     bcrypt.DefaultCost,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Person, error) {
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return Person{}, err
	}
	return s.store.Create(ctx, in, hash)
}

func (s *Service) Get(ctx context.Context, id string) (Person, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (Person, error) {
	return s.store.GetByEmail(ctx, email)
}

func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, page httpx.Page) (httpx.PagedResult[Person], error) {
	people, total, err := s.store.List(ctx, filter, page)
	if err != nil {
		return httpx.PagedResult[Person]{}, err
	}
	return httpx.PagedResult[Person]{Items: people, Page: page.Page, PageSize: page.PageSize, Total: total}, nil
}

func (s *Service) Update(ctx context.Context, id string, profile Profile) (Person, error) {
	return s.store.Update(ctx, id, profile)
}

// Delete soft-deletes the person and ends all of their sessions.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions of deleted person: %w", err)
	}
	return nil
}

// Authenticate checks email and password for person login.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, error) {
	p, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", session.ErrInvalidCredentials
		}
		return "", err
	}
	if p.PasswordHash == "" {
		return "", session.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return "", session.ErrInvalidCredentials
	}
	if p.BannedAt != nil {
		return "", session.ErrPersonBanned
	}
	return p.ID, nil
}

// ChangePassword verifies the current password, stores the new one and ends
// every other session of the person.
func (s *Service) ChangePassword(ctx context.Context, id, current, next, currentTokenHash string) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}

	hash, err := s.hashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, id, hash); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeOthers(ctx, id, currentTokenHash); err != nil {
		return fmt.Errorf("revoke other sessions: %w", err)
	}
	return nil
}

// ResetPassword replaces the password without the current one and ends all
// sessions. Callers must have verified a reset code.
func (s *Service) ResetPassword(ctx context.Context, id, next string) error {
	hash, err := s.hashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, id, hash); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions after reset: %w", err)
	}
	return nil
}

func (s *Service) ConfirmEmail(ctx context.Context, id, email string) error {
	return s.store.SetEmail(ctx, id, email, s.now())
}

func (s *Service) Ban(ctx context.Context, id, reason, actor string) (BanRecord, error) {
	record, err := s.store.SetBanned(ctx, id, true, strings.TrimSpace(reason), actor, s.now())
	if err != nil {
		return BanRecord{}, err
	}
	s.countBan(BanActionBan)

	revoked, err := s.sessions.RevokeAll(ctx, id)
	if err != nil {
		// The ban is committed and Validate rejects banned owners anyway.
		observability.CaptureError(s.logger, "ban_session_revoke_failed", err, map[string]any{"person_id": id})
	} else if s.logger != nil {
		s.logger.Info("person_banned", map[string]any{"person_id": id, "by": actor, "revoked_sessions": revoked})
	}
	return record, nil
}

func (s *Service) Unban(ctx context.Context, id, reason, actor string) (BanRecord, error) {
	record, err := s.store.SetBanned(ctx, id, false, strings.TrimSpace(reason), actor, s.now())
	if err != nil {
		return BanRecord{}, err
	}
	s.countBan(BanActionUnban)
	if s.logger != nil {
		s.logger.Info("person_unbanned", map[string]any{"person_id": id, "by": actor})
	}
	return record, nil
}

func (s *Service) BanHistory(ctx context.Context, id string) ([]BanRecord, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.BanHistory(ctx, id)
}

func (s *Service) UploadPhoto(ctx context.Context, id string, data []byte, contentType string) (string, error) {
	if s.images == nil {
		return "", ErrNoImageStorage
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return "", err
	}

	url, err := s.images.UploadImage(ctx, storage.Image{
		Data:        data,
		ContentType: contentType,
		Folder:      photoFolder,
		PublicID:    id,
	})
	if err != nil {
		return "", errors.Join(ErrPhotoUpload, err)
	}
	if err := s.store.SetPhotoURL(ctx, id, url); err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) countBan(action string) {
	if s.metrics != nil {
		s.metrics.BanActions.WithLabelValues(action).Inc()
	}
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
