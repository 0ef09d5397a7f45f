// Package recovery handles password resets, email verification and the
// manual account-recovery requests reviewed by staff.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"directory-api/internal/codestore"
	"directory-api/internal/mail"
	"directory-api/internal/observability"
	"directory-api/internal/person"
	"directory-api/internal/validate"
)

var (
	ErrInvalidCode = errors.New("code is invalid or expired")
	ErrDelivery    = errors.New("failed to deliver email")
)

// People is the part of the person service the code flows need.
type People interface {
	Get(ctx context.Context, id string) (person.Person, error)
	GetByEmail(ctx context.Context, email string) (person.Person, error)
	ResetPassword(ctx context.Context, id, password string) error
	ConfirmEmail(ctx context.Context, id, email string) error
}

type Composer interface {
	PasswordReset(to, name, code string, ttl time.Duration) (mail.Message, error)
	EmailVerification(to, name, code string, ttl time.Duration) (mail.Message, error)
}

type Service struct {
	people   People
	codes    *codestore.Issuer
	mailer   mail.Mailer
	composer Composer
	logger   *observability.Logger
}

func NewService(people People, codes *codestore.Issuer, mailer mail.Mailer, composer Composer, logger *observability.Logger) *Service {
	return &Service{people: people, codes: codes, mailer: mailer, composer: composer, logger: logger}
}

// RequestPasswordReset mails a reset code when the address belongs to an
// active person. Unknown addresses and delivery failures are not reported
// to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = validate.NormalizeEmail(email)
	p, err := s.people.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, person.ErrNotFound) {
			s.info("password_reset_unknown_email", nil)
			return nil
		}
		return err
	}
	if p.BannedAt != nil {
		s.info("password_reset_banned_person", map[string]any{"person_id": p.ID})
		return nil
	}

	entry, err := s.codes.Issue(ctx, codestore.PasswordReset, p.ID, p.Email)
	if err != nil {
		return err
	}
	msg, err := s.composer.PasswordReset(p.Email, p.FirstName, entry.Code, s.codes.TTL())
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		observability.CaptureError(s.logger, "password_reset_delivery_failed", err, map[string]any{"person_id": p.ID})
		if discardErr := s.codes.Discard(ctx, codestore.PasswordReset, p.ID); discardErr != nil {
			observability.CaptureError(s.logger, "password_reset_discard_failed", discardErr, map[string]any{"person_id": p.ID})
		}
		return nil
	}
	s.info("password_reset_requested", map[string]any{"person_id": p.ID})
	return nil
}

// CheckResetCode reports whether a reset code is live without using it.
func (s *Service) CheckResetCode(ctx context.Context, code string) error {
	_, err := s.codes.Check(ctx, codestore.PasswordReset, code)
	return codeError(err)
}

// ResetPassword consumes the code and sets the new password. The code is put
// back when the password could not be stored.
func (s *Service) ResetPassword(ctx context.Context, code, password string) error {
	entry, err := s.codes.Consume(ctx, codestore.PasswordReset, code)
	if err != nil {
		return codeError(err)
	}
	if err := s.people.ResetPassword(ctx, entry.PersonID, password); err != nil {
		if errors.Is(err, person.ErrNotFound) {
			return ErrInvalidCode
		}
		s.restore(ctx, codestore.PasswordReset, entry)
		return err
	}
	s.info("password_reset_completed", map[string]any{"person_id": entry.PersonID})
	return nil
}

// RequestEmailChange mails a verification code to email, or to the current
// address when email is empty.
func (s *Service) RequestEmailChange(ctx context.Context, personID, email string) (codestore.Entry, error) {
	p, err := s.people.Get(ctx, personID)
	if err != nil {
		return codestore.Entry{}, err
	}

	email = validate.NormalizeEmail(email)
	if email == "" {
		email = p.Email
	}
	if email != p.Email {
		owner, err := s.people.GetByEmail(ctx, email)
		switch {
		case err == nil && owner.ID != personID:
			return codestore.Entry{}, person.ErrEmailTaken
		case err != nil && !errors.Is(err, person.ErrNotFound):
			return codestore.Entry{}, err
		}
	}

	entry, err := s.codes.Issue(ctx, codestore.EmailChange, personID, email)
	if err != nil {
		return codestore.Entry{}, err
	}
	msg, err := s.composer.EmailVerification(email, p.FirstName, entry.Code, s.codes.TTL())
	if err != nil {
		return codestore.Entry{}, err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		if discardErr := s.codes.Discard(ctx, codestore.EmailChange, personID); discardErr != nil {
			observability.CaptureError(s.logger, "email_change_discard_failed", discardErr, map[string]any{"person_id": personID})
		}
		return codestore.Entry{}, errors.Join(ErrDelivery, err)
	}
	return entry, nil
}

// ConfirmEmailChange stores the address the code was sent to as the verified
// email of the person.
func (s *Service) ConfirmEmailChange(ctx context.Context, personID, code string) (string, error) {
	entry, err := s.codes.Check(ctx, codestore.EmailChange, code)
	if err != nil {
		return "", codeError(err)
	}
	if entry.PersonID != personID {
		return "", ErrInvalidCode
	}
	if _, err := s.codes.Consume(ctx, codestore.EmailChange, code); err != nil {
		return "", codeError(err)
	}
	if err := s.people.ConfirmEmail(ctx, personID, entry.Email); err != nil {
		if !errors.Is(err, person.ErrNotFound) && !errors.Is(err, person.ErrEmailTaken) {
			s.restore(ctx, codestore.EmailChange, entry)
		}
		return "", err
	}
	s.info("email_confirmed", map[string]any{"person_id": personID})
	return entry.Email, nil
}

func (s *Service) restore(ctx context.Context, purpose codestore.Purpose, entry codestore.Entry) {
	if err := s.codes.Restore(ctx, purpose, entry); err != nil {
		observability.CaptureError(s.logger, "code_restore_failed", err, map[string]any{
			"person_id": entry.PersonID,
			"purpose":   string(purpose),
		})
	}
}

func (s *Service) info(event string, fields map[string]any) {
	if s.logger != nil {
		s.logger.Info(event, fields)
	}
}

func codeError(err error) error {
	if errors.Is(err, codestore.ErrNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("resolve code: %w", err)
	}
	return nil
}
