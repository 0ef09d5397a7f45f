// Package codestore keeps the short-lived numeric codes sent by email for
// password resets and email changes.
package codestore

import (
	"context"
	"errors"
	"time"
)

type Purpose string

const (
	PasswordReset Purpose = "password_reset"
	EmailChange   Purpose = "email_change"
)

var (
	ErrNotFound  = errors.New("code not found or expired")
	ErrCodeInUse = errors.New("code already assigned")
)

// Entry is a live code. Email is the address the code was sent to; for email
// changes it is the address being verified.
type Entry struct {
	PersonID  string    `json:"person_id"`
	Code      string    `json:"code"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store holds at most one live code per person and purpose, and a code maps to
// at most one person. Implementations are safe for concurrent use.
type Store interface {
	// Put adds the entry, replacing any code the person already had. It
	// returns ErrCodeInUse when another person holds the same code.
	Put(ctx context.Context, purpose Purpose, entry Entry) error
	Lookup(ctx context.Context, purpose Purpose, code string) (Entry, error)
	// Take looks the code up and removes it in one step.
	Take(ctx context.Context, purpose Purpose, code string) (Entry, error)
	Remove(ctx context.Context, purpose Purpose, personID string) error
}
